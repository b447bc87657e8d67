// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
)

// Journal is the append-only audit store for alerts and hits.
type Journal interface {
	// Alerts
	SaveAlert(ctx context.Context, rec *models.AlertRecord) error
	ListAlerts(ctx context.Context, symbol string, limit int) ([]*models.AlertRecord, error)

	// Hits
	SaveHit(ctx context.Context, rec *models.HitRecord) error
	ListHits(ctx context.Context, symbol string, limit int) ([]*models.HitRecord, error)

	RunMigrations(ctx context.Context) error
	Close() error
}
