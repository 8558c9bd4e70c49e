package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"

	archiveContentType = "application/json"
	uploadTimeout      = 30 * time.Second
)

// Uploader writes an object and returns its location
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, content io.Reader) (string, error)
}

// Archive writes finished call records to object storage
type Archive struct {
	storageType StorageType
	uploader    Uploader
	localRoot   string
}

// NewGCSArchive archives to a bucket through uploader
func NewGCSArchive(uploader Uploader) *Archive {
	return &Archive{storageType: StorageTypeGCS, uploader: uploader}
}

// NewLocalArchive archives to files under root
func NewLocalArchive(root string) *Archive {
	return &Archive{storageType: StorageTypeLocal, localRoot: root}
}

// ObjectPath returns where the record of a call is archived
func ObjectPath(record *domain.CallRecord) string {
	started := record.StartedAt
	if started.IsZero() {
		started = record.CreatedAt
	}
	return fmt.Sprintf("calls/%s/%s.json", started.UTC().Format("2006/01/02"), record.CallSID)
}

// ArchiveCall stores record with its transcript and returns its location
func (a *Archive) ArchiveCall(ctx context.Context, record *domain.CallRecord) (string, error) {
	if record == nil || record.CallSID == "" {
		return "", fmt.Errorf("call record requires a call sid")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal call record: %w", err)
	}
	objectPath := ObjectPath(record)

	switch a.storageType {
	case StorageTypeGCS:
		return a.uploadToGCS(ctx, record.CallSID, data, objectPath)
	case StorageTypeLocal:
		return a.uploadToLocal(record.CallSID, data, objectPath)
	default:
		return "", fmt.Errorf("unknown storage type: %s", a.storageType)
	}
}

func (a *Archive) uploadToGCS(ctx context.Context, callID string, data []byte, objectPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	url, err := a.uploader.Upload(ctx, objectPath, archiveContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to upload call archive: %w", err)
	}
	logger.ForCall(callID).Info("Archived call to GCS", zap.String("url", url), zap.Int("bytes", len(data)))
	return url, nil
}

func (a *Archive) uploadToLocal(callID string, data []byte, relativePath string) (string, error) {
	fullPath := filepath.Join(a.localRoot, relativePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write call archive: %w", err)
	}
	logger.ForCall(callID).Info("Archived call to local file", zap.String("path", fullPath), zap.Int("bytes", len(data)))
	return fullPath, nil
}
