package vault

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// Journal receives one event per successful mutation.
type Journal interface {
	Record(ctx context.Context, e models.Event) error
}

// NopJournal drops every event.
type NopJournal struct{}

func (NopJournal) Record(context.Context, models.Event) error { return nil }

// Archiver keeps a copy of a file before the retention sweep removes it.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) error
}

func newEvent(ctx context.Context, kind models.EventKind, p, detail string, now time.Time) models.Event {
	return models.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Path:      p,
		Detail:    detail,
		Actor:     models.IdentityFromContext(ctx).Actor(),
		CreatedAt: now.UTC(),
	}
}
