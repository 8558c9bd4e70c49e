package repository

import (
	"context"

	"gorm.io/gorm"
)

// RepositoryManager combines all repositories
type RepositoryManager interface {
	CallRecords() *CallRecordRepository
	Contacts() *ContactRepository
	Business() *BusinessConfigRepository
	CalendarTokens() *CalendarTokenRepository

	// Transaction support
	WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db                *gorm.DB
	callRecordRepo    *CallRecordRepository
	contactRepo       *ContactRepository
	businessRepo      *BusinessConfigRepository
	calendarTokenRepo *CalendarTokenRepository
}

// NewGormRepositoryManager creates a new GORM repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:                db,
		callRecordRepo:    NewCallRecordRepository(db),
		contactRepo:       NewContactRepository(db),
		businessRepo:      NewBusinessConfigRepository(db),
		calendarTokenRepo: NewCalendarTokenRepository(db),
	}
}

// CallRecords returns the call history repository
func (m *GormRepositoryManager) CallRecords() *CallRecordRepository {
	return m.callRecordRepo
}

// Contacts returns the contact repository
func (m *GormRepositoryManager) Contacts() *ContactRepository {
	return m.contactRepo
}

// Business returns the business config repository
func (m *GormRepositoryManager) Business() *BusinessConfigRepository {
	return m.businessRepo
}

// CalendarTokens returns the calendar token repository
func (m *GormRepositoryManager) CalendarTokens() *CalendarTokenRepository {
	return m.calendarTokenRepo
}

// WithTx executes a function within a database transaction
func (m *GormRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositoryManager(tx))
	})
}

// Ping checks the database connection
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
