package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	files map[string]string
}

func (f *fakeStore) Persist(ctx context.Context, accountID int64, issuedAt time.Time, session string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeStore) Open(filename string) (io.ReadSeekCloser, time.Time, error) {
	content, ok := f.files[filename]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return nopCloser{strings.NewReader(content)}, time.Unix(1700000000, 0), nil
}

type nopCloser struct{ io.ReadSeeker }

func (nopCloser) Close() error { return nil }

type fakeIndex struct {
	refs []domain.CredentialRef
	err  error
	got  int
}

func (f *fakeIndex) Record(ctx context.Context, ref domain.CredentialRef) error { return nil }

func (f *fakeIndex) Recent(ctx context.Context, limit int) ([]domain.CredentialRef, error) {
	f.got = limit
	return f.refs, f.err
}

func newTestRouter(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Store == nil {
		deps.Store = &fakeStore{}
	}
	if deps.Index == nil {
		deps.Index = &fakeIndex{}
	}
	if deps.Channel == nil {
		deps.Channel = http.NotFoundHandler()
	}
	r, err := NewRouter(deps, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestIndexInjectsCountdown(t *testing.T) {
	r := newTestRouter(t, Deps{Countdown: 42 * time.Second})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "const COUNTDOWN =  42 ;") && !strings.Contains(body, "const COUNTDOWN = 42;") {
		t.Errorf("countdown not injected")
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content-type = %s", rec.Header().Get("Content-Type"))
	}
}

func TestExport(t *testing.T) {
	store := &fakeStore{files: map[string]string{"session_1_1700000000.txt": "tdlib:abc"}}
	r := newTestRouter(t, Deps{Store: store})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/session_1_1700000000.txt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "tdlib:abc" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "session_1_1700000000.txt") {
		t.Errorf("content-disposition = %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content-type = %q", ct)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/session_2_1.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "File not found" {
		t.Errorf("body = %v", body)
	}
}

func TestRestart(t *testing.T) {
	var stopped atomic.Int32
	done := make(chan struct{})
	restarter := NewRestarter(10*time.Millisecond, func() {
		stopped.Add(1)
		close(done)
	}, testLogger())
	r := newTestRouter(t, Deps{Restarter: restarter})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/restart", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"restarting"`) {
			t.Fatalf("restart response = %d %s", rec.Code, rec.Body.String())
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop was not called")
	}
	time.Sleep(30 * time.Millisecond)
	if n := stopped.Load(); n != 1 {
		t.Errorf("stop called %d times", n)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/restart", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/restart = %d", rec.Code)
	}
}

func TestSessionsList(t *testing.T) {
	idx := &fakeIndex{refs: []domain.CredentialRef{
		{AccountID: 2, IssuedAt: time.Unix(200, 0), Filename: "session_2_200.txt"},
	}}
	r := newTestRouter(t, Deps{Index: idx})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var refs []domain.CredentialRef
	if err := json.Unmarshal(rec.Body.Bytes(), &refs); err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Filename != "session_2_200.txt" {
		t.Errorf("refs = %+v", refs)
	}
	if idx.got != recentLimit {
		t.Errorf("limit = %d", idx.got)
	}

	r = newTestRouter(t, Deps{Index: &fakeIndex{}})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %s", rec.Body.String())
	}

	r = newTestRouter(t, Deps{Index: &fakeIndex{err: errors.New("redis down")}})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("index failure status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, Deps{Active: func() int { return 3 }})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body struct {
		Status string `json:"status"`
		Active int    `json:"active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Active != 3 {
		t.Errorf("body = %+v", body)
	}
}
