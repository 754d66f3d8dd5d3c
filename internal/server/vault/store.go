// Package vault is the storage engine: path containment, folder locking,
// quota accounting and file placement under a single vault root.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// maxNameAttempts bounds the collision-naming loop in AddFile.
const maxNameAttempts = 10000

// Entry is one listed file or folder.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	SizeText string    `json:"size_text"`
	Created  string    `json:"created"`
	Modified time.Time `json:"modified"`
}

// ListResult is the content of a folder. LockedPath is the boundary
// covering the folder itself, empty when it is not encrypted.
type ListResult struct {
	LockedPath string   `json:"locked_path,omitempty"`
	Locked     []string `json:"locked"`
	Folders    []Entry  `json:"folders"`
	Files      []Entry  `json:"files"`
}

// Store performs file and folder operations inside the vault.
type Store struct {
	guard    *Guard
	locks    *Locks
	quota    *Quota
	journal  Journal
	archiver Archiver
	logger   logging.Logger
	now      func() time.Time
}

type Option func(*Store)

func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(guard *Guard, locks *Locks, quota *Quota, opts ...Option) *Store {
	s := &Store{
		guard:   guard,
		locks:   locks,
		quota:   quota,
		journal: NopJournal{},
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "store")
	return s
}

// Open wires a Store with its guard, lock manager and quota for root.
func Open(root string, cipher *cryptox.Cipher, quota int64, quotaLabel string, logger logging.Logger, opts ...Option) (*Store, error) {
	guard, err := NewGuard(root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	locks := NewLocks(guard, cipher, logger)
	opts = append([]Option{WithLogger(logger)}, opts...)
	return NewStore(guard, locks, NewQuota(guard, quota, quotaLabel), opts...), nil
}

func (s *Store) Guard() *Guard { return s.guard }
func (s *Store) Locks() *Locks { return s.locks }
func (s *Store) Quota() *Quota { return s.quota }

// Create makes a new folder, along with any missing parents. An existing
// target is a conflict.
func (s *Store) Create(ctx context.Context, sub string) error {
	clean := Clean(sub)
	if clean == "" {
		return fmt.Errorf("%w: path already exists", common.ErrConflict)
	}
	abs, err := s.guard.Resolve(sub, false)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o770); err != nil {
		return fmt.Errorf("create %s: %w", clean, err)
	}
	if err := os.Mkdir(abs, 0o770); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: path already exists", common.ErrConflict)
		}
		return fmt.Errorf("create %s: %w", clean, err)
	}

	s.record(ctx, models.EventCreate, clean, "")
	return nil
}

// Delete removes a file or folder recursively. The vault root and the
// shared folder cannot be deleted.
func (s *Store) Delete(ctx context.Context, sub string) error {
	clean := Clean(sub)
	if isProtected(clean) {
		return common.ErrForbidden
	}
	abs, err := s.guard.Resolve(sub, true)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("delete %s: %w", clean, err)
	}

	s.record(ctx, models.EventDelete, clean, "")
	return nil
}

// Rename gives the item at sub a new name within the same folder.
func (s *Store) Rename(ctx context.Context, sub, name string) error {
	clean := Clean(sub)
	if isProtected(clean) {
		return common.ErrForbidden
	}
	if !validSegment(name) {
		return fmt.Errorf("%w: invalid name %q", common.ErrValidation, name)
	}

	oldAbs, err := s.guard.Resolve(sub, true)
	if err != nil {
		return err
	}
	target := path.Join(path.Dir(clean), name)
	newAbs, err := s.guard.Resolve(target, false)
	if err != nil {
		return err
	}

	if err := filex.RenameNoReplace(oldAbs, newAbs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: path already exists", common.ErrConflict)
		}
		return fmt.Errorf("rename %s: %w", clean, err)
	}

	s.record(ctx, models.EventRename, clean, Clean(target))
	return nil
}

// Move puts the item at sub inside folder, keeping its name. Items cannot
// cross a lock boundary, and a folder cannot move into itself.
func (s *Store) Move(ctx context.Context, sub, folder string) error {
	clean := Clean(sub)
	if isProtected(clean) {
		return common.ErrForbidden
	}
	dest := Clean(folder)

	oldAbs, err := s.guard.Resolve(sub, true)
	if err != nil {
		return err
	}
	destAbs, err := s.guard.Resolve(folder, true)
	if err != nil {
		return err
	}
	if info, err := os.Stat(destAbs); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: destination is not a folder", common.ErrValidation)
	}
	if dest == clean || strings.HasPrefix(dest, clean+"/") {
		return fmt.Errorf("%w: cannot move a folder into itself", common.ErrValidation)
	}

	srcBoundary, srcLocked := s.locks.LockedAncestor(parentOf(clean))
	dstBoundary, dstLocked := s.locks.LockedAncestor(dest)
	if srcLocked != dstLocked || srcBoundary != dstBoundary {
		return fmt.Errorf("%w: cannot move across encrypted folders", common.ErrConflict)
	}

	target := path.Join(dest, path.Base(clean))
	newAbs, err := s.guard.Resolve(target, false)
	if err != nil {
		return err
	}

	srcAccount, _ := UserScope(clean)
	dstAccount, _ := UserScope(dest)
	if srcAccount != dstAccount {
		size, err := filex.DirUsage(oldAbs)
		if err != nil {
			return fmt.Errorf("move %s: %w", clean, err)
		}
		if err := s.quota.CheckLimit(dest, size); err != nil {
			return err
		}
	}

	if err := filex.RenameNoReplace(oldAbs, newAbs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: item already exists at destination", common.ErrConflict)
		}
		return fmt.Errorf("move %s: %w", clean, err)
	}

	s.record(ctx, models.EventMove, clean, target)
	return nil
}

// AddFile stores data as filename inside the folder sub and returns the
// vault path it landed on. filename may carry subfolders, which are
// created. When the name is taken the file is stored as "name (n).ext".
// Inside an encrypted folder key must be valid and data is sealed with it.
func (s *Store) AddFile(ctx context.Context, sub, filename string, data []byte, key string) (string, error) {
	if err := s.quota.CheckLimit(sub, int64(len(data))); err != nil {
		return "", err
	}

	if Clean(filename) == "" {
		return "", fmt.Errorf("%w: missing file name", common.ErrValidation)
	}
	dest := path.Join(Clean(sub), Clean(filename))
	destAbs, err := s.guard.Resolve(dest, false)
	if err != nil {
		return "", err
	}

	if s.locks.IsLocked(dest) {
		if !s.locks.IsKeyValid(dest, key) {
			return "", fmt.Errorf("%w: key is not valid", common.ErrForbidden)
		}
		if data, err = s.locks.cipher.Encrypt(data, key); err != nil {
			return "", fmt.Errorf("encrypt %s: %w", dest, err)
		}
	}

	dir := filepath.Dir(destAbs)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("add %s: %w", dest, err)
	}

	final, err := writeExclusive(dir, filepath.Base(destAbs), data)
	if err != nil {
		return "", fmt.Errorf("add %s: %w", dest, err)
	}

	rel := s.guard.Rel(final)
	s.record(ctx, models.EventUpload, rel, "")
	return rel, nil
}

// writeExclusive creates the first free name in the collision sequence of
// name and writes data to it.
func writeExclusive(dir, name string, data []byte) (string, error) {
	next := nameSequence(name)
	for i := 0; i < maxNameAttempts; i++ {
		p := filepath.Join(dir, next())
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o660)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(p)
			return "", errors.Join(werr, cerr)
		}
		return p, nil
	}
	return "", fmt.Errorf("%w: no free name for %q", common.ErrConflict, name)
}

// List returns the visible content of the folder sub. The vault root only
// ever shows the shared folder.
func (s *Store) List(ctx context.Context, sub string) (*ListResult, error) {
	abs, err := s.guard.Resolve(sub, true)
	if err != nil {
		return nil, err
	}

	res := &ListResult{Locked: []string{}, Folders: []Entry{}, Files: []Entry{}}
	if boundary, ok := s.locks.LockedAncestor(sub); ok {
		res.LockedPath = boundary
	}

	if Clean(sub) == "" {
		res.Folders = append(res.Folders, Entry{Name: common.SharedFolder})
		return res, nil
	}

	items, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrInvalidPath
		}
		return nil, fmt.Errorf("%w: %q is not a folder", common.ErrValidation, Clean(sub))
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name()) < strings.ToLower(items[j].Name())
	})

	for _, item := range items {
		if filex.IsHidden(item.Name()) {
			continue
		}
		itemAbs := filepath.Join(abs, item.Name())
		info, err := os.Stat(itemAbs)
		if err != nil {
			s.logger.Warn(ctx, "skipping unreadable entry", "path", s.guard.Rel(itemAbs), "error", err)
			continue
		}

		e := Entry{
			Name:     item.Name(),
			Size:     info.Size(),
			Created:  info.ModTime().UTC().Format("2006-01-02 15:04"),
			Modified: info.ModTime(),
		}

		if info.IsDir() {
			if e.Size, err = filex.DirUsage(itemAbs); err != nil {
				return nil, err
			}
			e.SizeText = HumanSize(e.Size)
			res.Folders = append(res.Folders, e)
			if hasMarker(itemAbs) {
				res.Locked = append(res.Locked, item.Name())
			}
			continue
		}

		e.SizeText = HumanSize(e.Size)
		res.Files = append(res.Files, e)
	}

	return res, nil
}

// GetFile reads the file at sub. Inside an encrypted folder the content is
// opened with key; a missing or wrong key is forbidden.
func (s *Store) GetFile(ctx context.Context, sub, key string) ([]byte, error) {
	abs, err := s.guard.Resolve(sub, true)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a file", common.ErrValidation, Clean(sub))
	}

	if !s.locks.IsLocked(sub) {
		return data, nil
	}
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", common.ErrForbidden)
	}
	plain, err := s.locks.cipher.Decrypt(data, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrForbidden, err)
	}
	return plain, nil
}

// Lock encrypts the folder sub and records the change.
func (s *Store) Lock(ctx context.Context, sub, key string) error {
	if err := s.locks.Lock(ctx, sub, key); err != nil {
		return err
	}
	s.record(ctx, models.EventLock, Clean(sub), "")
	return nil
}

// Unlock decrypts the folder sub and records the change.
func (s *Store) Unlock(ctx context.Context, sub, key string) error {
	if err := s.locks.Unlock(ctx, sub, key); err != nil {
		return err
	}
	s.record(ctx, models.EventUnlock, Clean(sub), "")
	return nil
}

func (s *Store) record(ctx context.Context, kind models.EventKind, p, detail string) {
	if err := s.journal.Record(ctx, newEvent(ctx, kind, p, detail, s.now())); err != nil {
		s.logger.Warn(ctx, "journal write failed", "kind", kind, "path", p, "error", err)
	}
}

func isProtected(clean string) bool {
	return clean == "" || clean == common.SharedFolder
}

func validSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func parentOf(clean string) string {
	dir := path.Dir(clean)
	if dir == "." {
		return ""
	}
	return dir
}
