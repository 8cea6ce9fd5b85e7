// Package output delivers audit records and substitution decisions to the
// configured sink: stdout, partitioned JSON or parquet files (local or object
// storage), or a Kafka topic.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrisdamba/foodmarket/internal/cloudwriter"
	"github.com/chrisdamba/foodmarket/internal/models"
)

type OutputDestination interface {
	WriteMessage(topic string, msg []byte) error
	Close() error
}

// NewDestination picks the sink from config. Kafka wins when enabled;
// otherwise output.format decides.
func NewDestination(ctx context.Context, cfg *models.Config) (OutputDestination, error) {
	if cfg.Kafka.Enabled {
		return NewKafkaOutput(cfg.Kafka)
	}

	var factory cloudwriter.CloudWriterFactory
	if cfg.Output.Format != "console" && cfg.Output.Destination != "" && cfg.Output.Destination != "local" {
		var err error
		factory, err = cloudwriter.NewFactory(ctx, cfg.CloudStorage)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud writer factory: %w", err)
		}
	}

	switch cfg.Output.Format {
	case "json":
		out := NewJSONOutput(cfg.Output.Path, cfg.Output.Folder)
		if factory != nil {
			out.UseCloud(factory, cfg.CloudStorage.BucketName)
		}
		return out, nil
	case "parquet":
		out := NewParquetOutput(cfg.Output.Path, cfg.Output.Folder)
		if factory != nil {
			out.UseCloud(factory, cfg.CloudStorage.BucketName)
		}
		return out, nil
	case "console", "":
		return NewConsoleOutput(nil), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Output.Format)
	}
}

// eventTime is the moment a message describes, used to partition files.
// Messages without a timestamp are filed under the current hour.
func eventTime(msg []byte) time.Time {
	var stamps struct {
		CreatedAt *time.Time `json:"created_at"`
		DecidedAt *time.Time `json:"decided_at"`
	}
	if err := json.Unmarshal(msg, &stamps); err == nil {
		switch {
		case stamps.CreatedAt != nil && !stamps.CreatedAt.IsZero():
			return stamps.CreatedAt.UTC()
		case stamps.DecidedAt != nil && !stamps.DecidedAt.IsZero():
			return stamps.DecidedAt.UTC()
		}
	}
	return time.Now().UTC()
}

func partitionPath(t time.Time) string {
	year, month, day := t.Date()
	return fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d", year, month, day, t.Hour())
}
