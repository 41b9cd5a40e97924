package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"court_bot/internal/fetcher"
	"court_bot/internal/filter"
)

// SessionsArgs holds the parsed arguments of /sessions.
type SessionsArgs struct {
	Court     string
	Date      string
	Reference string
}

// SplitArgs splits command arguments shell-style, so values containing
// spaces can be quoted.
func SplitArgs(args string) ([]string, error) {
	words, err := shellquote.Split(args)
	if err != nil {
		return nil, fmt.Errorf("invalid quoting: %w", err)
	}
	return words, nil
}

// ParseSessionsArgs parses arguments for /sessions.
// Format: <court> <date> <reference>; the date may be "*" and is accepted
// as YYYY-MM-DD or DD.MM.YYYY.
func ParseSessionsArgs(args string) (SessionsArgs, error) {
	words, err := SplitArgs(args)
	if err != nil {
		return SessionsArgs{}, err
	}
	if len(words) != 3 {
		return SessionsArgs{}, errors.New("usage: /sessions <court> <date> <reference>")
	}

	court := strings.ToLower(words[0])
	if err := fetcher.ValidateCourt(court); err != nil {
		return SessionsArgs{}, err
	}
	date, err := filter.NormalizeDate(words[1])
	if err != nil {
		return SessionsArgs{}, err
	}
	if err := filter.ValidateReference(words[2]); err != nil {
		return SessionsArgs{}, err
	}
	return SessionsArgs{Court: court, Date: date, Reference: words[2]}, nil
}

// ParseCourtArg extracts a court name from command arguments.
func ParseCourtArg(args string) (string, error) {
	words, err := SplitArgs(args)
	if err != nil {
		return "", err
	}
	if len(words) != 1 {
		return "", errors.New("usage: /update <court>")
	}
	court := strings.ToLower(words[0])
	if err := fetcher.ValidateCourt(court); err != nil {
		return "", err
	}
	return court, nil
}
