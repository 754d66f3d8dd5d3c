// Package events declares the storage contract for the vault activity journal.
package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// Repository persists journal events.
type Repository interface {
	// Record inserts one event.
	Record(ctx context.Context, e models.Event) error

	// Recent returns up to limit events, newest first, optionally restricted
	// to paths starting with prefix.
	Recent(ctx context.Context, prefix string, limit int) ([]models.Event, error)

	// Prune deletes events created before the cutoff and returns how many.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
