// Package retrieval looks up what the receptionist knows about callers:
// stored contacts and related emails.
package retrieval

import (
	"context"
	"strings"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

// ContactSource is the storage query behind contact lookup
type ContactSource interface {
	FindByName(ctx context.Context, name string, limit int) ([]*domain.ContactRecord, error)
}

// ContactFinder matches callers against stored contacts
type ContactFinder struct {
	source ContactSource
}

// NewContactFinder creates a contact finder over source
func NewContactFinder(source ContactSource) *ContactFinder {
	return &ContactFinder{source: source}
}

// FindContactsByName matches the full name first. When nothing matches a
// multi-word name, the first word is tried on its own.
func (f *ContactFinder) FindContactsByName(ctx context.Context, name string, limit int) ([]domain.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []domain.Contact{}, nil
	}

	records, err := f.source.FindByName(ctx, name, limit)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		if parts := strings.Fields(name); len(parts) > 1 {
			logger.Debug(ctx, "No contact for full name, trying first name",
				zap.String("name", name),
				zap.String("first_name", parts[0]))
			records, err = f.source.FindByName(ctx, parts[0], limit)
			if err != nil {
				return nil, err
			}
		}
	}

	contacts := make([]domain.Contact, 0, len(records))
	for _, record := range records {
		contacts = append(contacts, record.ToContact())
	}
	return contacts, nil
}
