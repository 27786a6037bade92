package brokerobs

import (
	"context"
	"errors"
	"testing"
)

type stubTokens struct {
	token      string
	refreshErr error
	cleaned    bool
}

func (s *stubTokens) GetValidToken(context.Context) (string, error) { return s.token, nil }

func (s *stubTokens) ForceRefresh(context.Context) (string, error) {
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	return s.token + "-new", nil
}

func (s *stubTokens) Cleanup(context.Context) error {
	s.cleaned = true
	return nil
}

type stubApproval struct{ invalidated bool }

func (s *stubApproval) ApprovalKey(context.Context) (string, error) { return "key", nil }
func (s *stubApproval) Invalidate()                                 { s.invalidated = true }

func TestWrapTokensDelegates(t *testing.T) {
	inner := &stubTokens{token: "tok"}
	w := WrapTokens(inner)
	ctx := context.Background()

	if got, err := w.GetValidToken(ctx); err != nil || got != "tok" {
		t.Errorf("GetValidToken = %q, %v", got, err)
	}
	if got, err := w.ForceRefresh(ctx); err != nil || got != "tok-new" {
		t.Errorf("ForceRefresh = %q, %v", got, err)
	}
	if err := w.Cleanup(ctx); err != nil || !inner.cleaned {
		t.Errorf("Cleanup did not reach the inner provider: %v", err)
	}
}

func TestWrapTokensKeepsErrorChain(t *testing.T) {
	sentinel := errors.New("gateway down")
	w := WrapTokens(&stubTokens{refreshErr: sentinel})

	_, err := w.ForceRefresh(context.Background())
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel, got %v", err)
	}
}

func TestWrapApprovalDelegates(t *testing.T) {
	inner := &stubApproval{}
	w := WrapApproval(inner)

	if key, err := w.ApprovalKey(context.Background()); err != nil || key != "key" {
		t.Errorf("ApprovalKey = %q, %v", key, err)
	}
	w.Invalidate()
	if !inner.invalidated {
		t.Error("Expected Invalidate to reach the inner provider")
	}
}
