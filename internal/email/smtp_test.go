package email_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uniconnect-lb/uniconnect/internal/email"
)

func TestSMTPSender_honorsContextCancellation(t *testing.T) {
	// 192.0.2.1 (TEST-NET-1) is non-routable, so the dial would otherwise
	// block until the OS connect timeout.
	s := email.NewSMTPSender("192.0.2.1", 25, "", "", "noreply@uniconnect.app")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := s.Send(ctx, "student@aub.edu", "subject", "body", "")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Send blocked for %v despite cancelled context", elapsed)
	}
}

func TestSMTPSender_honorsContextDeadline(t *testing.T) {
	s := email.NewSMTPSender("192.0.2.1", 25, "", "", "noreply@uniconnect.app")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, "student@aub.edu", "subject", "body", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}
