// Package cloudwriter buffers archive files in memory and uploads them to
// object storage when they are closed.
package cloudwriter

import (
	"context"
	"fmt"

	"github.com/chrisdamba/foodmarket/internal/models"
)

type CloudWriter interface {
	Write(data []byte) (int, error)
	Close() error
}

type CloudWriterFactory interface {
	NewWriter(bucket, objectPath string) (CloudWriter, error)
}

// NewFactory returns the writer factory for the configured provider.
func NewFactory(ctx context.Context, cfg models.CloudStorageConfig) (CloudWriterFactory, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3WriterFactory(ctx, cfg.Region, cfg.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported cloud storage provider: %s", cfg.Provider)
	}
}
