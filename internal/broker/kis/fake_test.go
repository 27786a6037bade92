package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"stock-dashboard/internal/api"
)

var testCreds = Credentials{AppKey: "app-key", AppSecret: "app-secret"}

// fakeKIS is an in-process stand-in for the brokerage REST gateway.
type fakeKIS struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	tokenCalls    int
	approvalCalls int
	expiresIn     int64
	tokenFail     bool
	tokenGate     chan struct{}
	rejectBearer  string
	quoteCalls    map[string]int
	quotes        map[string]http.HandlerFunc
}

func newFakeKIS(t *testing.T) *fakeKIS {
	f := &fakeKIS{
		t:          t,
		expiresIn:  86400,
		quoteCalls: make(map[string]int),
		quotes:     make(map[string]http.HandlerFunc),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", f.handleToken)
	mux.HandleFunc("/oauth2/Approval", f.handleApproval)
	mux.HandleFunc("/uapi/", f.handleQuote)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKIS) client() *api.Client {
	return api.NewClient(api.WithBaseURL(f.srv.URL), api.WithTimeout(5*time.Second))
}

func (f *fakeKIS) handleToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.t.Errorf("token request body: %v", err)
	}
	if body["grant_type"] != "client_credentials" || body["appkey"] != testCreds.AppKey || body["appsecret"] != testCreds.AppSecret {
		f.t.Errorf("unexpected token request body: %v", body)
	}

	f.mu.Lock()
	gate := f.tokenGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.tokenCalls++
	n := f.tokenCalls
	fail := f.tokenFail
	expiresIn := f.expiresIn
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error_code":"EGW00133","error_description":"rate"}`))
		return
	}
	resp := map[string]any{"access_token": fmt.Sprintf("tok-%d", n), "token_type": "Bearer"}
	if expiresIn > 0 {
		resp["expires_in"] = expiresIn
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeKIS) handleApproval(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	if body["secretkey"] != testCreds.AppSecret {
		f.t.Errorf("approval request missing secretkey: %v", body)
	}

	f.mu.Lock()
	f.approvalCalls++
	n := f.approvalCalls
	f.mu.Unlock()

	if f.rejected(r) {
		writeExpired(w)
		return
	}
	fmt.Fprintf(w, `{"approval_key":"approval-%d"}`, n)
}

// rejected reports whether r carries the bearer token the fake treats as
// expired.
func (f *fakeKIS) rejected(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejectBearer != "" && r.Header.Get("authorization") == "Bearer "+f.rejectBearer
}

func (f *fakeKIS) handleQuote(w http.ResponseWriter, r *http.Request) {
	trID := r.Header.Get("tr_id")
	f.mu.Lock()
	f.quoteCalls[trID]++
	h := f.quotes[trID]
	f.mu.Unlock()

	if r.Header.Get("appkey") != testCreds.AppKey || r.Header.Get("appsecret") != testCreds.AppSecret {
		f.t.Errorf("missing app credentials on %s", r.URL.Path)
	}
	if r.Header.Get("custtype") != "P" {
		f.t.Errorf("custtype = %q, want P", r.Header.Get("custtype"))
	}
	if f.rejected(r) {
		writeExpired(w)
		return
	}
	if h == nil {
		f.t.Errorf("no handler for tr_id %q", trID)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeKIS) onQuote(trID string, h http.HandlerFunc) {
	f.mu.Lock()
	f.quotes[trID] = h
	f.mu.Unlock()
}

func (f *fakeKIS) calls() (token, approval int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.approvalCalls
}

func (f *fakeKIS) quoteCount(trID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls[trID]
}

func writeExpired(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"rt_cd":"1","msg_cd":"EGW00123","msg1":"token expired"}`))
}

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mapKV is an in-memory KVStore.
type mapKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapKV() *mapKV { return &mapKV{data: make(map[string]string)} }

func (m *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapKV) Close() error { return nil }
