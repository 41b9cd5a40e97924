// Package diff compares two session listings of a court.
package diff

import (
	"strconv"
	"strings"

	"court_bot/internal/model"
)

// Result holds the outcome of comparing a stored listing with a fresh one.
// Added and Unchanged keep the order of the fresh listing, Removed keeps the
// order of the stored one.
type Result struct {
	Added     []model.Session
	Removed   []model.Session
	Unchanged []model.Session
}

// Empty reports whether nothing was added or removed.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Key returns the canonical serialization of a session's full field tuple.
// Equal keys mean structurally equal sessions.
func Key(s model.Session) string {
	fields := [...]string{s.Court, s.Date, s.Time, s.Type, s.Lawsuit, s.Hall, s.Reference, s.Note}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(f))
	}
	return b.String()
}

// Compute splits the sessions into added, removed and unchanged sets.
// A session whose fields differ in any way from every stored session counts
// as added, and the stored one it replaced as removed. Identical rows within
// one listing collapse into a single entry.
func Compute(stored, fresh []model.Session) Result {
	before := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		before[Key(s)] = struct{}{}
	}

	var res Result
	now := make(map[string]struct{}, len(fresh))
	for _, s := range fresh {
		k := Key(s)
		if _, dup := now[k]; dup {
			continue
		}
		now[k] = struct{}{}
		if _, ok := before[k]; ok {
			res.Unchanged = append(res.Unchanged, s)
		} else {
			res.Added = append(res.Added, s)
		}
	}

	gone := make(map[string]struct{})
	for _, s := range stored {
		k := Key(s)
		if _, ok := now[k]; ok {
			continue
		}
		if _, dup := gone[k]; dup {
			continue
		}
		gone[k] = struct{}{}
		res.Removed = append(res.Removed, s)
	}
	return res
}
