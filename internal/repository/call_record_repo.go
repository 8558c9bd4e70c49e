package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// CallRecordRepository handles database operations for call history
type CallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new call record repository
func NewCallRecordRepository(db *gorm.DB) *CallRecordRepository {
	return &CallRecordRepository{db: db}
}

// Save writes the record of a finished call. Saving the same call twice
// replaces the earlier row.
func (r *CallRecordRepository) Save(ctx context.Context, record *domain.CallRecord) error {
	if record == nil {
		return fmt.Errorf("call record cannot be nil")
	}
	if record.CallSID == "" {
		return fmt.Errorf("call sid cannot be empty")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "call_sid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "ended_at", "duration_seconds", "transcript", "conversation",
				"summary", "decision", "decision_label", "reasoning", "action_taken",
				"identified_name", "call_purpose", "company", "archive_url",
			}),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}

// UpdateDuration sets the duration of a saved call, as reported by the
// telephony provider after the call ended
func (r *CallRecordRepository) UpdateDuration(ctx context.Context, callSID string, seconds int) error {
	result := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("call_sid = ?", callSID).
		Update("duration_seconds", seconds)
	if result.Error != nil {
		return fmt.Errorf("failed to update call duration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call record %s: %w", callSID, domain.ErrNotFound)
	}
	return nil
}

// GetByCallSID retrieves a call record; a missing call returns nil, nil
func (r *CallRecordRepository) GetByCallSID(ctx context.Context, callSID string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	if err := r.db.WithContext(ctx).Where("call_sid = ?", callSID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return &record, nil
}

// List returns the most recent calls first
func (r *CallRecordRepository) List(ctx context.Context, limit, offset int) ([]*domain.CallRecord, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	var records []*domain.CallRecord
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	return records, nil
}

// CountByDecision returns how many calls ended with each decision since a time
func (r *CallRecordRepository) CountByDecision(ctx context.Context, since time.Time) (map[domain.Decision]int64, error) {
	var rows []struct {
		Decision domain.Decision
		Total    int64
	}
	if err := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Select("decision, count(*) AS total").
		Where("started_at >= ?", since).
		Group("decision").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count call decisions: %w", err)
	}

	counts := make(map[domain.Decision]int64, len(rows))
	for _, row := range rows {
		counts[row.Decision] = row.Total
	}
	return counts, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
