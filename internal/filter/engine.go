// Package filter implements the subscription matching engine.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"court_bot/internal/model"
)

// Wildcard matches any date or any reference.
const Wildcard = "*"

const (
	isoDate    = "2006-01-02"
	germanDate = "02.01.2006"

	maxReferenceLen = 128
)

// ErrMalformed is returned by the Validate functions for filters that can
// never match anything.
var ErrMalformed = errors.New("malformed filter")

// Matcher is a subscription's filters compiled once for repeated matching.
// A Matcher built from malformed filters matches nothing.
type Matcher struct {
	court   string
	date    string
	anyDate bool
	ref     *regexp.Regexp
	valid   bool
}

// Compile prepares the filters of sub for matching.
func Compile(sub model.Subscription) Matcher {
	m := Matcher{court: sub.Court}

	date, err := NormalizeDate(sub.DateFilter)
	if err != nil {
		return m
	}
	m.date = date
	m.anyDate = date == Wildcard

	ref, err := compileReference(sub.ReferenceFilter)
	if err != nil {
		return m
	}
	m.ref = ref
	m.valid = true
	return m
}

// Valid reports whether the filters were well-formed.
func (m Matcher) Valid() bool {
	return m.valid
}

// Match checks whether a session belongs to the subscription's court and
// passes both its date and reference filters.
func (m Matcher) Match(s model.Session) bool {
	if !m.valid || s.Court != m.court {
		return false
	}
	if !m.anyDate && s.Date != m.date {
		return false
	}
	if m.ref == nil {
		return true
	}
	return m.ref.MatchString(s.Reference)
}

// Match checks a single session against a subscription. It never fails:
// malformed filters simply match nothing.
func Match(sub model.Subscription, s model.Session) bool {
	return Compile(sub).Match(s)
}

// NormalizeDate turns a date filter into its canonical form: the Wildcard or
// an ISO date. Both ISO (2024-01-10) and German (10.01.2024) input is accepted.
func NormalizeDate(filter string) (string, error) {
	f := strings.TrimSpace(filter)
	if f == "" || f == Wildcard {
		return Wildcard, nil
	}
	for _, layout := range []string{isoDate, germanDate} {
		if d, err := time.Parse(layout, f); err == nil {
			return d.Format(isoDate), nil
		}
	}
	return "", fmt.Errorf("%w: invalid date %q", ErrMalformed, filter)
}

// ValidateDate checks whether a date filter is well-formed.
func ValidateDate(filter string) error {
	_, err := NormalizeDate(filter)
	return err
}

// ValidateReference checks whether a reference filter is well-formed.
func ValidateReference(filter string) error {
	_, err := compileReference(filter)
	return err
}

// compileReference turns a glob into an anchored regular expression.
// "*" matches any run of characters and "?" a single one; everything else is
// literal and case-sensitive. A nil regexp means "any reference".
func compileReference(filter string) (*regexp.Regexp, error) {
	if filter == "" || filter == Wildcard {
		return nil, nil
	}
	if len(filter) > maxReferenceLen {
		return nil, fmt.Errorf("%w: reference longer than %d bytes", ErrMalformed, maxReferenceLen)
	}
	if !utf8.ValidString(filter) {
		return nil, fmt.Errorf("%w: reference is not valid UTF-8", ErrMalformed)
	}
	if strings.ContainsFunc(filter, unicode.IsControl) {
		return nil, fmt.Errorf("%w: reference contains control characters", ErrMalformed)
	}

	pattern := regexp.QuoteMeta(filter)
	pattern = strings.ReplaceAll(pattern, `\*`, ".*")
	pattern = strings.ReplaceAll(pattern, `\?`, ".")
	re, err := regexp.Compile("^(?s:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return re, nil
}
