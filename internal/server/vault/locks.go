package vault

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

// LockPlaintext is the known constant sealed into every lock marker.
const LockPlaintext = "nanome-vault-lock"

const stageSuffix = ".vault-stage"

// Locks finds lock boundaries and encrypts or decrypts whole subtrees.
type Locks struct {
	guard  *Guard
	cipher *cryptox.Cipher
	logger logging.Logger
}

func NewLocks(guard *Guard, cipher *cryptox.Cipher, logger logging.Logger) *Locks {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Locks{guard: guard, cipher: cipher, logger: logger.With("module", "locks")}
}

// LockedAncestor returns the nearest lock boundary covering sub, scanning
// from the root downward. The boundary is returned in vault-relative form.
func (l *Locks) LockedAncestor(sub string) (string, bool) {
	clean := Clean(sub)

	var parts []string
	if clean != "" {
		parts = strings.Split(clean, "/")
	}

	dir := l.guard.Root()
	if hasMarker(dir) {
		return "", true
	}
	for i, part := range parts {
		dir = filepath.Join(dir, part)
		if hasMarker(dir) {
			return path.Join(parts[:i+1]...), true
		}
	}
	return "", false
}

func (l *Locks) IsLocked(sub string) bool {
	_, ok := l.LockedAncestor(sub)
	return ok
}

// IsKeyValid reports whether key opens the boundary covering sub. Unlocked
// paths accept any key. It never fails; every error counts as invalid.
func (l *Locks) IsKeyValid(sub, key string) bool {
	boundary, ok := l.LockedAncestor(sub)
	if !ok {
		return true
	}
	if key == "" {
		return false
	}

	marker := filepath.Join(l.guard.Root(), filepath.FromSlash(boundary), common.LockFileName)
	data, err := os.ReadFile(marker)
	if err != nil {
		return false
	}
	plain, err := l.cipher.Decrypt(data, key)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(plain, []byte(LockPlaintext)) == 1
}

// Lock encrypts every visible file under sub with key and marks sub as a
// lock boundary. Nested boundaries are refused in both directions.
func (l *Locks) Lock(ctx context.Context, sub, key string) error {
	if Clean(sub) == "" {
		return fmt.Errorf("%w: vault root cannot be locked", common.ErrForbidden)
	}
	if key == "" {
		return fmt.Errorf("%w: key is required", common.ErrValidation)
	}

	abs, err := l.lockTarget(sub)
	if err != nil {
		return err
	}
	if boundary, ok := l.LockedAncestor(sub); ok {
		return fmt.Errorf("%w: path already encrypted under %q", common.ErrConflict, boundary)
	}
	nested, err := containsMarker(abs)
	if err != nil {
		return err
	}
	if nested {
		return fmt.Errorf("%w: path already encrypted", common.ErrConflict)
	}

	dk := l.cipher.Key(key)
	defer common.WipeByteArray(dk)

	if err := l.transform(ctx, abs, func(b []byte) ([]byte, error) { return cryptox.Seal(b, dk) }); err != nil {
		return fmt.Errorf("lock %s: %w", sub, err)
	}

	marker, err := cryptox.Seal([]byte(LockPlaintext), dk)
	if err != nil {
		return fmt.Errorf("lock %s: %w", sub, err)
	}
	if err := os.WriteFile(filepath.Join(abs, common.LockFileName), marker, 0o660); err != nil {
		return fmt.Errorf("lock %s: write marker: %w", sub, err)
	}

	l.logger.Info(ctx, "folder locked", "path", Clean(sub), "kdf", l.cipher.KDFName())
	return nil
}

// Unlock decrypts every visible file under sub and removes its marker. sub
// must itself be the lock boundary.
func (l *Locks) Unlock(ctx context.Context, sub, key string) error {
	abs, err := l.lockTarget(sub)
	if err != nil {
		return err
	}

	boundary, ok := l.LockedAncestor(sub)
	if !ok {
		return fmt.Errorf("%w: path is not locked", common.ErrConflict)
	}
	if boundary != Clean(sub) {
		return fmt.Errorf("%w: path is locked by %q", common.ErrConflict, boundary)
	}
	if !l.IsKeyValid(sub, key) {
		return fmt.Errorf("%w: key is not valid", common.ErrForbidden)
	}

	dk := l.cipher.Key(key)
	defer common.WipeByteArray(dk)

	if err := l.transform(ctx, abs, func(b []byte) ([]byte, error) { return cryptox.Open(b, dk) }); err != nil {
		return fmt.Errorf("unlock %s: %w", sub, err)
	}
	if err := os.Remove(filepath.Join(abs, common.LockFileName)); err != nil {
		return fmt.Errorf("unlock %s: remove marker: %w", sub, err)
	}

	l.logger.Info(ctx, "folder unlocked", "path", Clean(sub))
	return nil
}

func (l *Locks) lockTarget(sub string) (string, error) {
	abs, err := l.guard.Resolve(sub, true)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidPath, sub)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a folder", common.ErrValidation, sub)
	}
	return abs, nil
}

type stagedFile struct {
	target string
	staged string
}

// transform applies fn to every visible file under dir. All outputs are
// staged as hidden siblings first; originals are only replaced once every
// file has been staged. A failure while replacing leaves a mixed tree.
func (l *Locks) transform(ctx context.Context, dir string, fn func([]byte) ([]byte, error)) error {
	var staged []stagedFile

	discard := func() {
		for _, s := range staged {
			_ = os.Remove(s.staged)
		}
	}

	err := filex.WalkVisibleFiles(dir, func(p string, info fs.FileInfo) error {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out, err := fn(data)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}

		tmp := filepath.Join(filepath.Dir(p), common.HiddenPrefix+filepath.Base(p)+stageSuffix)
		if err := os.WriteFile(tmp, out, info.Mode().Perm()); err != nil {
			return err
		}
		staged = append(staged, stagedFile{target: p, staged: tmp})
		return nil
	})
	if err != nil {
		discard()
		return err
	}

	for i, s := range staged {
		if err := os.Rename(s.staged, s.target); err != nil {
			discard()
			l.logger.Error(ctx, "partial folder transform", "dir", l.guard.Rel(dir), "replaced", i, "total", len(staged), "error", err)
			return fmt.Errorf("replace %s: %w", filepath.Base(s.target), err)
		}
	}
	return nil
}

func hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, common.LockFileName))
	return err == nil && info.Mode().IsRegular()
}

var errFound = errors.New("found")

func containsMarker(dir string) (bool, error) {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == common.LockFileName {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return true, nil
	}
	return false, err
}
