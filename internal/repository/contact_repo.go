package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepository handles database operations for known contacts
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// FindByName returns contacts whose name contains name, case-insensitively
func (r *ContactRepository) FindByName(ctx context.Context, name string, limit int) ([]*domain.ContactRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if limit <= 0 {
		limit = 3
	}

	var contacts []*domain.ContactRecord
	if err := r.db.WithContext(ctx).
		Where("name ILIKE ?", "%"+escapeLike(name)+"%").
		Order("name").
		Limit(limit).
		Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to find contacts: %w", err)
	}
	return contacts, nil
}

// Upsert creates a contact or updates the one with the same email
func (r *ContactRepository) Upsert(ctx context.Context, contact *domain.ContactRecord) error {
	if contact == nil || strings.TrimSpace(contact.Name) == "" {
		return fmt.Errorf("contact name cannot be empty")
	}
	now := time.Now()
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	if contact.Email == "" {
		if err := r.db.WithContext(ctx).Create(contact).Error; err != nil {
			return fmt.Errorf("failed to create contact: %w", err)
		}
		return nil
	}

	var existing domain.ContactRecord
	err := r.db.WithContext(ctx).Where("email = ?", contact.Email).Limit(1).Find(&existing).Error
	if err != nil {
		return fmt.Errorf("failed to look up contact: %w", err)
	}
	if existing.ID != "" {
		contact.ID = existing.ID
		contact.CreatedAt = existing.CreatedAt
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(contact).Error; err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// List returns contacts ordered by name
func (r *ContactRepository) List(ctx context.Context, limit, offset int) ([]*domain.ContactRecord, error) {
	var contacts []*domain.ContactRecord
	if err := r.db.WithContext(ctx).
		Order("name").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// DeleteDuplicates keeps the oldest contact for each (lower(name), lower(email))
// pair and deletes the rest. It returns the number of rows removed.
func (r *ContactRepository) DeleteDuplicates(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM contacts
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY lower(name), lower(coalesce(email, ''))
					ORDER BY created_at, id
				) AS rn
				FROM contacts
			) ranked
			WHERE ranked.rn > 1
		)`)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete duplicate contacts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
