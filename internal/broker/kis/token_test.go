package kis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func newTestTokenCache(f *fakeKIS, clock *fakeClock, kv *mapKV) *TokenCache {
	opts := TokenOptions{Now: clock.Now}
	if kv != nil {
		opts.Store = kv
	}
	return NewTokenCache(f.client(), testCreds, opts)
}

func TestGetValidTokenReusesCachedToken(t *testing.T) {
	f := newFakeKIS(t)
	tc := newTestTokenCache(f, newFakeClock(), nil)
	ctx := context.Background()

	first, err := tc.GetValidToken(ctx)
	if err != nil {
		t.Fatalf("GetValidToken returned error: %v", err)
	}
	second, err := tc.GetValidToken(ctx)
	if err != nil {
		t.Fatalf("GetValidToken returned error: %v", err)
	}

	if first != "tok-1" || second != "tok-1" {
		t.Errorf("Expected tok-1 twice, got %q and %q", first, second)
	}
	if n, _ := f.calls(); n != 1 {
		t.Errorf("Expected 1 issuance, got %d", n)
	}
}

func TestConcurrentCallersShareOneIssuance(t *testing.T) {
	f := newFakeKIS(t)
	gate := make(chan struct{})
	f.tokenGate = gate
	tc := newTestTokenCache(f, newFakeClock(), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tc.GetValidToken(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != "tok-1" {
			t.Errorf("caller %d got %q, want tok-1", i, results[i])
		}
	}
	if n, _ := f.calls(); n != 1 {
		t.Errorf("Expected 1 issuance for %d concurrent callers, got %d", callers, n)
	}
}

func TestTokenReissuedInsideSafetyMargin(t *testing.T) {
	f := newFakeKIS(t)
	clock := newFakeClock()
	tc := newTestTokenCache(f, clock, nil)
	ctx := context.Background()

	if _, err := tc.GetValidToken(ctx); err != nil {
		t.Fatal(err)
	}

	// 24h validity, 5m margin: still usable with 6 minutes left.
	clock.Advance(24*time.Hour - 6*time.Minute)
	if tok, _ := tc.GetValidToken(ctx); tok != "tok-1" {
		t.Errorf("Expected cached tok-1 outside the margin, got %q", tok)
	}

	clock.Advance(2 * time.Minute)
	tok, err := tc.GetValidToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" {
		t.Errorf("Expected tok-2 inside the margin, got %q", tok)
	}
	if n, _ := f.calls(); n != 2 {
		t.Errorf("Expected 2 issuances, got %d", n)
	}
}

func TestTokenExpiryFallsBackToDefaultValidity(t *testing.T) {
	f := newFakeKIS(t)
	f.expiresIn = 0
	clock := newFakeClock()
	tc := NewTokenCache(f.client(), testCreds, TokenOptions{Now: clock.Now, DefaultValidity: time.Hour})

	if _, err := tc.GetValidToken(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := clock.Now().Add(time.Hour)
	if got := tc.Token().ExpiresAt; !got.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got, want)
	}
}

func TestForceRefreshAlwaysIssues(t *testing.T) {
	f := newFakeKIS(t)
	tc := newTestTokenCache(f, newFakeClock(), nil)
	ctx := context.Background()

	if _, err := tc.GetValidToken(ctx); err != nil {
		t.Fatal(err)
	}
	tok, err := tc.ForceRefresh(ctx)
	if err != nil {
		t.Fatalf("ForceRefresh returned error: %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("Expected tok-2, got %q", tok)
	}
	if got, _ := tc.GetValidToken(ctx); got != "tok-2" {
		t.Errorf("Expected refreshed token to be cached, got %q", got)
	}
}

func TestFailedIssuanceKeepsPreviousToken(t *testing.T) {
	f := newFakeKIS(t)
	tc := newTestTokenCache(f, newFakeClock(), nil)
	ctx := context.Background()

	if _, err := tc.GetValidToken(ctx); err != nil {
		t.Fatal(err)
	}

	f.mu.Lock()
	f.tokenFail = true
	f.mu.Unlock()

	if _, err := tc.ForceRefresh(ctx); err == nil {
		t.Fatal("Expected ForceRefresh to fail")
	}
	if got := tc.Token().Value; got != "tok-1" {
		t.Errorf("Expected tok-1 to survive a failed refresh, got %q", got)
	}
}

func TestMissingCredentials(t *testing.T) {
	f := newFakeKIS(t)
	tc := NewTokenCache(f.client(), Credentials{AppKey: "only-key"}, TokenOptions{})

	_, err := tc.GetValidToken(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
	if n, _ := f.calls(); n != 0 {
		t.Errorf("Expected no HTTP call, got %d", n)
	}
}

func TestTokenHydratedFromStore(t *testing.T) {
	f := newFakeKIS(t)
	clock := newFakeClock()
	kv := newMapKV()
	kv.data[tokenKey] = "stored-token"
	kv.data[tokenExpiryKey] = strconv.FormatInt(clock.Now().Add(2*time.Hour).UnixMilli(), 10)

	tc := newTestTokenCache(f, clock, kv)
	tok, err := tc.GetValidToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "stored-token" {
		t.Errorf("Expected stored-token, got %q", tok)
	}
	if n, _ := f.calls(); n != 0 {
		t.Errorf("Expected no issuance, got %d", n)
	}
}

func TestMalformedStoredTokenIsIgnored(t *testing.T) {
	tests := []struct {
		name   string
		expiry string
	}{
		{"non numeric expiry", "tomorrow"},
		{"expired", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeKIS(t)
			kv := newMapKV()
			kv.data[tokenKey] = "stored-token"
			kv.data[tokenExpiryKey] = tt.expiry

			tc := newTestTokenCache(f, newFakeClock(), kv)
			tok, err := tc.GetValidToken(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if tok != "tok-1" {
				t.Errorf("Expected a freshly issued token, got %q", tok)
			}
		})
	}
}

func TestIssuedTokenIsPersistedAndCleanedUp(t *testing.T) {
	f := newFakeKIS(t)
	clock := newFakeClock()
	kv := newMapKV()
	tc := newTestTokenCache(f, clock, kv)
	ctx := context.Background()

	if _, err := tc.GetValidToken(ctx); err != nil {
		t.Fatal(err)
	}
	if kv.data[tokenKey] != "tok-1" {
		t.Errorf("Expected tok-1 in store, got %q", kv.data[tokenKey])
	}
	wantExpiry := strconv.FormatInt(clock.Now().Add(24*time.Hour).UnixMilli(), 10)
	if kv.data[tokenExpiryKey] != wantExpiry {
		t.Errorf("Stored expiry = %q, want %q", kv.data[tokenExpiryKey], wantExpiry)
	}

	if err := tc.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if len(kv.data) != 0 {
		t.Errorf("Expected store to be empty after Cleanup, got %v", kv.data)
	}
	if tc.Token().Value != "" {
		t.Error("Expected in-memory token to be cleared")
	}

	// Cold again: the next call issues.
	if tok, _ := tc.GetValidToken(ctx); tok != "tok-2" {
		t.Errorf("Expected tok-2 after cleanup, got %q", tok)
	}
}

func TestCancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newFakeKIS(t)
	gate := make(chan struct{})
	f.tokenGate = gate
	tc := newTestTokenCache(f, newFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, err := tc.GetValidToken(ctx)
		impatient <- err
	}()

	patient := make(chan string, 1)
	go func() {
		tok, _ := tc.GetValidToken(context.Background())
		patient <- tok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-impatient; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	close(gate)
	if tok := <-patient; tok != "tok-1" {
		t.Errorf("Expected tok-1 for the patient caller, got %q", tok)
	}
}
