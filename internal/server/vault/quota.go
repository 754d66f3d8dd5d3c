package vault

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
)

var (
	userScope = regexp.MustCompile(`^user-[0-9a-f]{8}`)
	orgScope  = regexp.MustCompile(`^org-[0-9a-f]{8}`)
)

// UserScope returns the account segment sub starts with, if any.
func UserScope(sub string) (string, bool) {
	m := userScope.FindString(Clean(sub))
	return m, m != ""
}

// OrgScope returns the organization segment sub starts with, if any.
func OrgScope(sub string) (string, bool) {
	m := orgScope.FindString(Clean(sub))
	return m, m != ""
}

// Quota enforces one byte limit per top-level account folder.
type Quota struct {
	guard *Guard
	limit int64
	label string
}

// NewQuota returns a Quota allowing limit bytes per account; 0 disables it.
// label is the human form shown in the rejection message.
func NewQuota(guard *Guard, limit int64, label string) *Quota {
	if label == "" {
		label = HumanSize(limit)
	}
	return &Quota{guard: guard, limit: limit, label: label}
}

func (q *Quota) Limit() int64 {
	return q.limit
}

// Usage returns the bytes stored under the account folder sub belongs to.
// Paths outside an account folder report zero.
func (q *Quota) Usage(sub string) (int64, error) {
	account, ok := UserScope(sub)
	if !ok {
		return 0, nil
	}
	root := filepath.Join(q.guard.Root(), account)
	if !filex.Exists(root) {
		return 0, nil
	}
	return filex.DirUsage(root)
}

// CheckLimit rejects a write of incoming bytes under sub when it would take
// the account past its limit. Reaching the limit exactly is allowed.
func (q *Quota) CheckLimit(sub string, incoming int64) error {
	if q == nil || q.limit <= 0 {
		return nil
	}
	if _, ok := UserScope(sub); !ok {
		return nil
	}

	used, err := q.Usage(sub)
	if err != nil {
		return err
	}
	if used+incoming > q.limit {
		return fmt.Errorf("%w: User storage exceeded (max %s)", common.ErrQuotaExceeded, q.label)
	}
	return nil
}

var sizePattern = regexp.MustCompile(`^(?i)\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?)B?\s*$`)

// ParseSize reads sizes such as "10MB", "1.5GB", "512K" or "2048" using
// 1024-based units. The empty string is zero.
func ParseSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	exp := strings.Index("KMGT", strings.ToUpper(m[2])) + 1
	if m[2] == "" {
		exp = 0
	}
	return int64(n * math.Pow(1024, float64(exp))), nil
}

// HumanSize formats bytes as e.g. "1.5MB".
func HumanSize(bytes int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes <= 0 {
		return "0.0B"
	}
	power := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if power >= len(units) {
		power = len(units) - 1
	}
	return fmt.Sprintf("%.1f%s", float64(bytes)/math.Pow(1024, float64(power)), units[power])
}
