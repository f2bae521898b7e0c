// Package testhelpers holds fixtures shared by package tests.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
)

// NiagaraPage and PortColbornePage are trimmed copies of the status page layout.
const (
	NiagaraPage = `<!DOCTYPE html>
<html><head><title>Bridge Status</title></head>
<body>
<div class="bridge">
<span>Lakeshore Rd. (Bridge 1)</span>
<span>Available</span>
</div>
<div class="bridge">
<span>Carlton St. (Bridge 3A)</span>
<span>Unavailable (Raised)</span>
</div>
<div class="bridge">
<span>Highway 20 (Bridge 11)</span>
<span>Available (Raising Soon)</span>
</div>
</body></html>`

	PortColbornePage = `<!DOCTYPE html>
<html><head><title>Bridge Status</title></head>
<body>
<div class="bridge">
<span>Main St. (Bridge 19)</span>
<span>Unavailable (Lowering)</span>
</div>
<div class="bridge">
<span>Clarence St. (Bridge 21)</span>
<span>Available</span>
</div>
</body></html>`
)

// FakeUpstream serves canned status pages and counts hits per source key.
type FakeUpstream struct {
	Server *httptest.Server

	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	hits   map[string]int
	delay  time.Duration
}

// NewFakeUpstream starts a server with NiagaraPage and PortColbornePage under
// /niagara and /portcolborne. The server is closed when the test ends.
func NewFakeUpstream(t *testing.T) *FakeUpstream {
	t.Helper()
	u := &FakeUpstream{
		pages: map[string]string{
			models.SourceNiagara:      NiagaraPage,
			models.SourcePortColborne: PortColbornePage,
		},
		status: map[string]int{},
		hits:   map[string]int{},
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Server.Close)
	return u
}

func (u *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path[1:]
	u.mu.Lock()
	u.hits[key]++
	page, ok := u.pages[key]
	status := u.status[key]
	delay := u.delay
	u.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if !ok {
		http.NotFound(w, r)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// Sources returns source definitions pointing at this server, niagara first.
func (u *FakeUpstream) Sources() []models.Source {
	return []models.Source{
		{Key: models.SourceNiagara, URL: u.Server.URL + "/" + models.SourceNiagara},
		{Key: models.SourcePortColborne, URL: u.Server.URL + "/" + models.SourcePortColborne},
	}
}

// SetPage replaces the page served for key.
func (u *FakeUpstream) SetPage(key, page string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pages[key] = page
}

// FailWith makes key answer with the given HTTP status; 0 restores normal pages.
func (u *FakeUpstream) FailWith(key string, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status[key] = status
}

// SetDelay makes every response wait d before being written.
func (u *FakeUpstream) SetDelay(d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.delay = d
}

// Hits returns how many requests key has received.
func (u *FakeUpstream) Hits(key string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[key]
}
