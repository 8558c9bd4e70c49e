package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CalendarTokenRepository stores the OAuth token of the connected calendar
type CalendarTokenRepository struct {
	db *gorm.DB
}

// NewCalendarTokenRepository creates a new calendar token repository
func NewCalendarTokenRepository(db *gorm.DB) *CalendarTokenRepository {
	return &CalendarTokenRepository{db: db}
}

// Get returns the token for userID, or nil, nil when the calendar is not connected
func (r *CalendarTokenRepository) Get(ctx context.Context, userID string) (*domain.CalendarToken, error) {
	var token domain.CalendarToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get calendar token: %w", err)
	}
	return &token, nil
}

// Save stores a token, replacing any previous token for the same user
func (r *CalendarTokenRepository) Save(ctx context.Context, token *domain.CalendarToken) error {
	if token == nil || token.UserID == "" {
		return fmt.Errorf("calendar token requires a user id")
	}
	token.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(token).Error; err != nil {
		return fmt.Errorf("failed to save calendar token: %w", err)
	}
	return nil
}
