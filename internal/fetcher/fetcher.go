// Package fetcher downloads and parses the session calendar of a court.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // session dates are local to Europe/Berlin.

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"

	"court_bot/internal/model"
)

// DefaultURLTemplate is the calendar page of a court; %s is the court name.
const DefaultURLTemplate = "https://www.%s.nrw.de/behoerde/sitzungstermine/index.php"

const (
	nameSelector  = "meta[name=Copyright]"
	datesSelector = "#startDate > option"
	rowSelector   = "table#sitzungsTermineTable tr[id].dataRow"

	maxBodySize = 5 * 1024 * 1024
)

var courtNameRe = regexp.MustCompile(`^[a-zA-Z0-9-]{1,63}$`)

// ErrInvalidCourt is returned for court names that cannot name a portal.
var ErrInvalidCourt = errors.New("invalid court name")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Listing is a court's freshly fetched calendar.
type Listing struct {
	FullName string
	Sessions []model.Session
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// courtLocation is the zone the court calendars publish their dates in.
var courtLocation = mustLoadLocation("Europe/Berlin")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %q: %v", name, err))
	}
	return loc
}

// Fetcher scrapes court calendar pages.
type Fetcher struct {
	client      HTTPClient
	urlTemplate string
	loc         *time.Location
	retries     uint64
	backoff     time.Duration
}

// New creates a Fetcher with the given HTTP client and URL template.
func New(client HTTPClient, urlTemplate string) *Fetcher {
	if urlTemplate == "" {
		urlTemplate = DefaultURLTemplate
	}
	return &Fetcher{
		client:      client,
		urlTemplate: urlTemplate,
		loc:         courtLocation,
		retries:     3,
		backoff:     500 * time.Millisecond,
	}
}

// SetRetry overrides the retry count and initial backoff for transient failures.
func (f *Fetcher) SetRetry(retries uint64, backoff time.Duration) {
	f.retries = retries
	f.backoff = backoff
}

// ValidateCourt checks whether name can be used as a court name.
func ValidateCourt(name string) error {
	if !courtNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCourt, name)
	}
	return nil
}

// Fetch downloads the index page of a court and every day page it links,
// returning all sessions in page order.
func (f *Fetcher) Fetch(ctx context.Context, court string) (*Listing, error) {
	if err := ValidateCourt(court); err != nil {
		return nil, err
	}

	indexURL := fmt.Sprintf(f.urlTemplate, court)
	doc, err := f.get(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("index page: %w", err)
	}

	fullName, ok := doc.Find(nameSelector).First().Attr("content")
	if !ok {
		return nil, errors.New("parse index page: court name meta tag missing")
	}

	type day struct {
		date string
		url  string
	}
	var days []day
	doc.Find(datesSelector).Each(func(_ int, opt *goquery.Selection) {
		raw, ok := opt.Attr("value")
		if !ok {
			return
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return
		}
		days = append(days, day{
			date: time.Unix(ts, 0).In(f.loc).Format("2006-01-02"),
			url:  fmt.Sprintf("%s?startDate=%d&termsPerPage=0", indexURL, ts),
		})
	})

	listing := &Listing{FullName: strings.TrimSpace(fullName)}
	for _, d := range days {
		page, err := f.get(ctx, d.url)
		if err != nil {
			return nil, fmt.Errorf("day page %s: %w", d.date, err)
		}
		listing.Sessions = append(listing.Sessions, parseRows(page, court, d.date)...)
	}
	return listing, nil
}

func parseRows(doc *goquery.Document, court, date string) []model.Session {
	var sessions []model.Session
	doc.Find(rowSelector).Each(func(_ int, tr *goquery.Selection) {
		cell := func(class string) string {
			return strings.TrimSpace(tr.Find("td." + class).First().Text())
		}
		sessions = append(sessions, model.Session{
			Court:     court,
			Date:      date,
			Time:      cell("termDate"),
			Type:      cell("termType"),
			Lawsuit:   cell("termLawsuit"),
			Hall:      cell("termHall"),
			Reference: cell("termReference"),
			Note:      cell("termNote"),
		})
	})
	return sessions
}

// get fetches and parses one page, retrying network errors and 5xx
// responses with exponential backoff.
func (f *Fetcher) get(ctx context.Context, url string) (*goquery.Document, error) {
	var body []byte
	backoff := retry.WithMaxRetries(f.retries, retry.NewExponential(f.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", "CourtNotifyBot/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(fmt.Errorf("http get: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{URL: url, Code: resp.StatusCode}
			if resp.StatusCode >= 500 {
				return retry.RetryableError(serr)
			}
			return serr
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read body: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
