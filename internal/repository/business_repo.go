package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BusinessConfigRepository reads and writes who the receptionist works for
type BusinessConfigRepository struct {
	db *gorm.DB
}

// NewBusinessConfigRepository creates a new business config repository
func NewBusinessConfigRepository(db *gorm.DB) *BusinessConfigRepository {
	return &BusinessConfigRepository{db: db}
}

// GetActive returns the most recently updated config, or nil, nil when none exists
func (r *BusinessConfigRepository) GetActive(ctx context.Context) (*domain.BusinessConfig, error) {
	var cfg domain.BusinessConfig
	if err := r.db.WithContext(ctx).Order("updated_at DESC").First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get business config: %w", err)
	}
	return &cfg, nil
}

// Save creates or updates a business config
func (r *BusinessConfigRepository) Save(ctx context.Context, cfg *domain.BusinessConfig) error {
	if cfg == nil {
		return fmt.Errorf("business config cannot be nil")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfg.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("failed to save business config: %w", err)
	}
	return nil
}
