package vault

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

var testCipher = cryptox.New(cryptox.IteratedSHA256{Iterations: 3})

type memJournal struct {
	mu     sync.Mutex
	events []models.Event
}

func (j *memJournal) Record(_ context.Context, e models.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *memJournal) kinds() []models.EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.EventKind, 0, len(j.events))
	for _, e := range j.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestStore(t *testing.T, limit int64, opts ...Option) *Store {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "shared"), 0o770))
	s, err := Open(root, testCipher, limit, "", nil, opts...)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, s *Store, sub string, data string) {
	t.Helper()
	p := filepath.Join(s.Guard().Root(), filepath.FromSlash(sub))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o770))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o660))
}

func readFile(t *testing.T, s *Store, sub string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(s.Guard().Root(), filepath.FromSlash(sub)))
	require.NoError(t, err)
	return string(b)
}
