package rpcretry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chainrelay/publisher/internal/domainerr"
)

func TestDoRetriesTransportThenSucceeds(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, fmt.Errorf("flaky: %w", domainerr.ErrTransportPending)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("always flaky: %w", domainerr.ErrTransportTimeout)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxAttempts, attempts)
	}
}

func TestDoDoesNotRetryPrecondition(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("bad input: %w", domainerr.ErrInvalidAddress)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt for a non-transport error, got %d", attempts)
	}
	if !errors.Is(err, domainerr.ErrInvalidAddress) {
		t.Fatalf("expected wrapped precondition error, got %v", err)
	}
}
