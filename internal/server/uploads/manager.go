// Package uploads implements resumable chunked uploads and direct batch
// uploads on top of the vault store.
package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/vault"
)

// Converter turns an office document into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, filename string, data []byte) ([]byte, error)
}

// sessionInfo is the side-car record kept next to the partial payload.
type sessionInfo struct {
	Path string `json:"path"`
	Key  string `json:"key,omitempty"`
}

// File is one member of a direct batch upload.
type File struct {
	Name string
	Data []byte
}

// UploadResult lists what a batch stored and which names failed.
type UploadResult struct {
	Stored []string `json:"stored,omitempty"`
	Failed []string `json:"failed,omitempty"`
}

// ChunkResult tells the caller whether a chunk completed its upload.
type ChunkResult struct {
	Done bool   `json:"done"`
	Path string `json:"path,omitempty"`
}

// maxParallelFiles caps how many files of one batch are finalized at once.
const maxParallelFiles = 4

// Manager owns the upload session directory.
type Manager struct {
	dir       string
	store     *vault.Store
	converter Converter
	logger    logging.Logger
	now       func() time.Time
	parallel  int
}

func NewManager(dir string, store *vault.Store, converter Converter, logger logging.Logger) (*Manager, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("uploads dir: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		dir:       abs,
		store:     store,
		converter: converter,
		logger:    logger.With("module", "uploads"),
		now:       time.Now,
		parallel:  maxParallelFiles,
	}, nil
}

// Dir returns the session directory root.
func (m *Manager) Dir() string {
	return m.dir
}

// Init opens a session for filename of the declared size, to be stored
// under sub with key. It returns the session id.
func (m *Manager) Init(ctx context.Context, sub, filename, key string, size int64) (string, error) {
	if !singleSegment(filename) {
		return "", fmt.Errorf("%w: invalid file name %q", common.ErrValidation, filename)
	}
	if size <= 0 {
		return "", fmt.Errorf("%w: invalid size %d", common.ErrValidation, size)
	}
	if _, err := m.store.Guard().Resolve(sub, false); err != nil {
		return "", err
	}
	if err := m.store.Quota().CheckLimit(sub, size); err != nil {
		return "", err
	}

	id := uuid.NewString()
	dir := filepath.Join(m.dir, id)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("init upload: %w", err)
	}

	info, err := json.Marshal(sessionInfo{Path: vault.Clean(sub), Key: key})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, common.SessionInfoName), info, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("init upload: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), nil, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("init upload: %w", err)
	}

	m.logger.Debug(ctx, "upload session opened", "id", id, "path", vault.Clean(sub), "size", size)
	return id, nil
}

var rangePattern = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+)$`)

// ParseContentRange reads "bytes start-end/total" and checks that
// start < end <= total and start < total.
func ParseContentRange(s string) (start, end, total int64, err error) {
	m := rangePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%w: invalid header: \"Content-Range\"", common.ErrValidation)
	}
	start, _ = strconv.ParseInt(m[1], 10, 64)
	end, _ = strconv.ParseInt(m[2], 10, 64)
	total, _ = strconv.ParseInt(m[3], 10, 64)

	if start >= total || start >= end || end > total {
		return 0, 0, 0, fmt.Errorf("%w: invalid header: \"Content-Range\"", common.ErrValidation)
	}
	return start, end, total, nil
}

// AppendChunk adds chunk to the payload of session id. The payload must
// currently hold exactly start bytes. Once it holds total bytes the upload
// is finalized into the vault and the session is removed.
func (m *Manager) AppendChunk(ctx context.Context, id, filename, contentRange string, chunk []byte) (*ChunkResult, error) {
	dir, err := m.sessionDir(id)
	if err != nil {
		return nil, err
	}
	if !singleSegment(filename) {
		return nil, fmt.Errorf("%w: invalid file name %q", common.ErrValidation, filename)
	}
	payload := filepath.Join(dir, filename)

	stat, err := os.Stat(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid upload", common.ErrValidation)
	}

	start, _, total, err := ParseContentRange(contentRange)
	if err != nil {
		return nil, err
	}
	if stat.Size() != start {
		return nil, fmt.Errorf("%w: invalid upload chunk", common.ErrValidation)
	}
	if start+int64(len(chunk)) > total {
		return nil, fmt.Errorf("%w: chunk exceeds declared size", common.ErrValidation)
	}

	size, err := appendFile(payload, chunk)
	if err != nil {
		return nil, fmt.Errorf("append chunk: %w", err)
	}
	if size > total {
		// a concurrent append for the same session slipped in
		_ = os.Truncate(payload, start)
		return nil, fmt.Errorf("%w: invalid upload chunk", common.ErrValidation)
	}
	if size < total {
		return &ChunkResult{}, nil
	}

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn(ctx, "upload session not removed", "id", id, "error", err)
		}
	}()

	info, err := readInfo(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(payload)
	if err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}

	p, err := m.Finalize(ctx, filename, data, info.Path, info.Key)
	if err != nil {
		return nil, err
	}
	return &ChunkResult{Done: true, Path: p}, nil
}

// Cancel removes session id. Removing an unknown session is not an error.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	dir, err := m.sessionDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("cancel upload: %w", err)
	}
	m.logger.Debug(ctx, "upload session cancelled", "id", id)
	return nil
}

// Finalize stores a complete upload. The name is sanitized, office
// documents are converted to PDF, and anything outside the extension
// allow-list is refused. It returns the vault path written.
func (m *Manager) Finalize(ctx context.Context, filename string, data []byte, sub, key string) (string, error) {
	name := vault.SanitizeName(filename)

	switch vault.Classify(name) {
	case vault.ExtUnsupported:
		return "", fmt.Errorf("%w: unsupported file type %q", common.ErrValidation, name)
	case vault.ExtConverted:
		if m.converter == nil {
			return "", fmt.Errorf("%w: no converter configured", common.ErrConversion)
		}
		out, err := m.converter.Convert(ctx, name, data)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", common.ErrConversion, name, err)
		}
		if len(out) == 0 {
			return "", fmt.Errorf("%w: %s: empty result", common.ErrConversion, name)
		}
		data = out
		name = vault.ReplaceExt(name, vault.ConvertedExt)
	}

	p, err := m.store.AddFile(ctx, sub, name, data, key)
	if err != nil {
		return "", err
	}
	m.logger.Info(ctx, "upload stored", "path", p, "bytes", len(data))
	return p, nil
}

// UploadFiles finalizes the files of a batch, a few at a time. Per-file
// failures are collected in Failed; quota, auth and path errors fail the
// whole call and stop the files not yet started.
func (m *Manager) UploadFiles(ctx context.Context, sub, key string, files []File) (*UploadResult, error) {
	var (
		mu  sync.Mutex
		res = &UploadResult{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)

	for _, f := range files {
		f := f // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			p, err := m.Finalize(gctx, f.Name, f.Data, sub, key)
			if err != nil && isFatal(err) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.logger.Warn(ctx, "upload failed", "file", f.Name, "error", err)
				res.Failed = append(res.Failed, f.Name)
				return nil
			}
			res.Stored = append(res.Stored, p)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// SweepAbandoned removes sessions with no activity within maxAge and
// returns how many were removed.
func (m *Manager) SweepAbandoned(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("sweep uploads: %w", err)
	}
	cutoff := m.now().Add(-maxAge)

	removed := 0
	for _, e := range entries {
		p := filepath.Join(m.dir, e.Name())
		last, err := lastActivity(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, err
		}
		if !last.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("sweep uploads: %w", err)
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info(ctx, "abandoned uploads removed", "count", removed)
	}
	return removed, nil
}

func (m *Manager) sessionDir(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: invalid upload id", common.ErrValidation)
	}
	return filepath.Join(m.dir, u.String()), nil
}

func readInfo(dir string) (*sessionInfo, error) {
	b, err := os.ReadFile(filepath.Join(dir, common.SessionInfoName))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid upload", common.ErrValidation)
	}
	var info sessionInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("read upload info: %w", err)
	}
	return &info, nil
}

func appendFile(p string, chunk []byte) (int64, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Write(chunk); err != nil {
		return 0, err
	}
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// lastActivity is the newest modification time of p and its direct
// children; appends touch the payload, not the session directory.
func lastActivity(p string) (time.Time, error) {
	st, err := os.Stat(p)
	if err != nil {
		return time.Time{}, err
	}
	last := st.ModTime()
	if !st.IsDir() {
		return last, nil
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return time.Time{}, err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(last) {
			last = info.ModTime()
		}
	}
	return last, nil
}

func singleSegment(name string) bool {
	if name == "" || name == "." || name == ".." || filex.IsHidden(name) {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func isFatal(err error) bool {
	for _, target := range []error{
		common.ErrQuotaExceeded,
		common.ErrForbidden,
		common.ErrInvalidPath,
		common.ErrUnauthenticated,
		common.ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
