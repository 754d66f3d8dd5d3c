package vault

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// SweepExpired removes every visible file not accessed within maxAge and
// returns how many were removed. With an Archiver configured each file is
// archived first, still encrypted if it sits in a locked folder; a file
// whose archive upload fails is kept for the next sweep.
func (s *Store) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-maxAge)

	var expired []string
	err := filex.WalkVisibleFiles(s.guard.Root(), func(p string, info fs.FileInfo) error {
		if filex.AccessTime(info).Before(cutoff) {
			expired = append(expired, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep files: %w", err)
	}

	removed := 0
	for _, p := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		rel := s.guard.Rel(p)

		if s.archiver != nil {
			data, err := os.ReadFile(p)
			if err != nil {
				s.logger.Warn(ctx, "archive read failed", "path", rel, "error", err)
				continue
			}
			if err := s.archiver.Archive(ctx, rel, data); err != nil {
				s.logger.Warn(ctx, "archive upload failed", "path", rel, "error", err)
				continue
			}
		}

		if err := os.Remove(p); err != nil {
			s.logger.Warn(ctx, "expired file not removed", "path", rel, "error", err)
			continue
		}
		removed++
		s.record(ctx, models.EventExpired, rel, "")
	}

	if removed > 0 {
		s.logger.Info(ctx, "expired files removed", "count", removed)
	}
	return removed, nil
}
