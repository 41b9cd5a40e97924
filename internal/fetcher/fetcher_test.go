package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"

	"court_bot/internal/model"
)

const testTemplate = "https://www.%s.example.test/sitzungstermine/index.php"

type response struct {
	body       string
	statusCode int
	err        error
}

// mockTransport serves canned responses by URL. A URL with several responses
// serves them in order and repeats the last one.
type mockTransport struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     map[string]int
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	url := req.URL.String()
	rs, ok := m.responses[url]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewBufferString("not found"))}, nil
	}
	i := min(m.calls[url], len(rs)-1)
	m.calls[url]++
	r := rs[i]
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
	}, nil
}

func (m *mockTransport) callCount(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/" + name) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return string(data)
}

const (
	indexURL = "https://www.vg-koeln.example.test/sitzungstermine/index.php"
	day1URL  = indexURL + "?startDate=1704873600&termsPerPage=0"
	day2URL  = indexURL + "?startDate=1704960000&termsPerPage=0"
)

func courtResponses(t *testing.T) map[string][]response {
	return map[string][]response{
		indexURL: {{body: loadFixture(t, "court_index.html"), statusCode: 200}},
		day1URL:  {{body: loadFixture(t, "court_day_1.html"), statusCode: 200}},
		day2URL:  {{body: loadFixture(t, "court_day_2.html"), statusCode: 200}},
	}
}

var wantSessions = []model.Session{
	{
		Court: "vg-koeln", Date: "2024-01-10", Time: "09:00", Type: "mündliche Verhandlung",
		Lawsuit: "A ./. Stadt Köln", Hall: "H1", Reference: "12 K 345/23",
	},
	{
		Court: "vg-koeln", Date: "2024-01-10", Time: "10:30", Type: "Erörterungstermin",
		Hall: "H2", Reference: "3 L 12/24", Note: "öffentlich",
	},
	{
		Court: "vg-koeln", Date: "2024-01-11", Time: "11:00", Type: "Verkündungstermin",
		Lawsuit: "C ./. Land NRW", Hall: "H1", Reference: "7 K 1/22",
	},
}

func TestFetch(t *testing.T) {
	f := New(&mockTransport{responses: courtResponses(t)}, testTemplate)

	got, err := f.Fetch(context.Background(), "vg-koeln")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	want := &Listing{FullName: "Verwaltungsgericht Köln", Sessions: wantSessions}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		court     string
		responses func(t *testing.T) map[string][]response
	}{
		{
			name:      "invalid court name",
			court:     "vg koeln/../x",
			responses: courtResponses,
		},
		{
			name:  "index not found",
			court: "vg-koeln",
			responses: func(*testing.T) map[string][]response {
				return map[string][]response{indexURL: {{body: "gone", statusCode: 404}}}
			},
		},
		{
			name:  "network error",
			court: "vg-koeln",
			responses: func(*testing.T) map[string][]response {
				return map[string][]response{indexURL: {{err: io.ErrUnexpectedEOF}}}
			},
		},
		{
			name:  "missing court name meta",
			court: "vg-koeln",
			responses: func(*testing.T) map[string][]response {
				return map[string][]response{indexURL: {{body: "<html><body>maintenance</body></html>", statusCode: 200}}}
			},
		},
		{
			name:  "day page fails",
			court: "vg-koeln",
			responses: func(t *testing.T) map[string][]response {
				r := courtResponses(t)
				r[day2URL] = []response{{body: "boom", statusCode: 500}}
				return r
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(&mockTransport{responses: tt.responses(t)}, testTemplate)
			f.SetRetry(0, time.Millisecond)
			if _, err := f.Fetch(context.Background(), tt.court); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFetchInvalidCourtError(t *testing.T) {
	f := New(&mockTransport{}, testTemplate)
	_, err := f.Fetch(context.Background(), "")
	if !errors.Is(err, ErrInvalidCourt) {
		t.Fatalf("expected ErrInvalidCourt, got %v", err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	r := courtResponses(t)
	r[indexURL] = append([]response{{body: "busy", statusCode: 503}}, r[indexURL]...)
	transport := &mockTransport{responses: r}

	f := New(transport, testTemplate)
	f.SetRetry(2, time.Millisecond)

	got, err := f.Fetch(context.Background(), "vg-koeln")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff(3, len(got.Sessions)); diff != "" {
		t.Errorf("session count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, transport.callCount(indexURL)); diff != "" {
		t.Errorf("index calls (-want +got):\n%s", diff)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	transport := &mockTransport{responses: map[string][]response{
		indexURL: {{body: "nope", statusCode: 403}},
	}}
	f := New(transport, testTemplate)
	f.SetRetry(3, time.Millisecond)

	_, err := f.Fetch(context.Background(), "vg-koeln")
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if diff := cmp.Diff(403, serr.Code); diff != "" {
		t.Errorf("status (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, transport.callCount(indexURL)); diff != "" {
		t.Errorf("index calls (-want +got):\n%s", diff)
	}
}

func TestFetchCancelled(t *testing.T) {
	f := New(&mockTransport{responses: courtResponses(t)}, testTemplate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, "vg-koeln"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestFetchOverHTTP(t *testing.T) {
	defer gock.Off()

	client := &http.Client{}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	gock.New("https://www.vg-koeln.example.test").
		Get("/sitzungstermine/index.php").
		MatchParam("startDate", "1704873600").
		Reply(200).
		BodyString(loadFixture(t, "court_day_1.html"))
	gock.New("https://www.vg-koeln.example.test").
		Get("/sitzungstermine/index.php").
		MatchParam("startDate", "1704960000").
		Reply(200).
		BodyString(loadFixture(t, "court_day_2.html"))
	gock.New("https://www.vg-koeln.example.test").
		Get("/sitzungstermine/index.php").
		MatchHeader("User-Agent", "CourtNotifyBot").
		Reply(200).
		BodyString(loadFixture(t, "court_index.html"))

	f := New(client, testTemplate)
	got, err := f.Fetch(context.Background(), "vg-koeln")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff(wantSessions, got.Sessions); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if !gock.IsDone() {
		t.Error("not all expected requests were made")
	}
}

func TestNewUsesCourtTimezone(t *testing.T) {
	f := New(&mockTransport{}, "")
	if diff := cmp.Diff("Europe/Berlin", f.loc.String()); diff != "" {
		t.Errorf("location (-want +got):\n%s", diff)
	}
}

func TestMustLoadLocationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown zone")
		}
	}()
	mustLoadLocation("Nowhere/Atlantis")
}
