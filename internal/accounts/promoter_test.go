package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uniconnect-lb/uniconnect/internal/accounts"
	"github.com/uniconnect-lb/uniconnect/internal/verification"
	"go.uber.org/zap"
)

func TestPromote_pendingRegistration(t *testing.T) {
	store := newStubAccountStore()
	svc := accounts.NewService(store, zap.NewNop())
	promoter := accounts.NewPromoter(store, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.StageRegistration(ctx, seekerInput("lina@aub.edu")); err != nil {
		t.Fatalf("StageRegistration: %v", err)
	}
	sub, err := svc.ResolveSubject(ctx, "lina@aub.edu")
	if err != nil {
		t.Fatalf("ResolveSubject: %v", err)
	}

	verifiedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	summary, err := promoter.Promote(ctx, sub, verifiedAt)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if summary.Email != "lina@aub.edu" {
		t.Errorf("summary email: %q", summary.Email)
	}
	if summary.Role != string(accounts.RoleSeeker) {
		t.Errorf("summary role: %q", summary.Role)
	}
	if summary.VerifiedAt == nil || !summary.VerifiedAt.Equal(verifiedAt) {
		t.Errorf("VerifiedAt = %v, want %v", summary.VerifiedAt, verifiedAt)
	}

	// The staged row is gone and a verified user exists in its place.
	if _, err := store.GetPendingByEmail(ctx, "lina@aub.edu"); !errors.Is(err, accounts.ErrNotFound) {
		t.Errorf("pending row survived promotion: %v", err)
	}
	u, err := store.GetUserByEmail(ctx, "lina@aub.edu")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if !u.EmailVerified {
		t.Error("promoted user not marked verified")
	}
}

func TestPromote_existingUser(t *testing.T) {
	store := newStubAccountStore()
	u := &accounts.User{ID: uuid.New(), Email: "old@aub.edu", Username: "old"}
	store.users["old@aub.edu"] = u
	store.profiles[u.ID] = &accounts.Profile{
		ID: uuid.New(), UserID: u.ID, FullName: "Old Timer", Role: accounts.RoleOwner, Phone: "+96171000000",
	}
	promoter := accounts.NewPromoter(store, zap.NewNop())

	id := u.ID
	sub := verification.Subject{Email: "old@aub.edu", OwnerID: &id}
	summary, err := promoter.Promote(context.Background(), sub, time.Now())
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if summary.UserID != u.ID {
		t.Errorf("UserID = %s, want %s", summary.UserID, u.ID)
	}
	if summary.FullName != "Old Timer" {
		t.Errorf("profile data not folded in: %+v", summary)
	}

	got, _ := store.GetUserByEmail(context.Background(), "old@aub.edu")
	if !got.EmailVerified {
		t.Error("existing user not marked verified")
	}
}

func TestPromote_pendingMissing(t *testing.T) {
	promoter := accounts.NewPromoter(newStubAccountStore(), zap.NewNop())

	sub := verification.Subject{Email: "ghost@aub.edu"}
	if _, err := promoter.Promote(context.Background(), sub, time.Now()); err == nil {
		t.Fatal("expected error when nothing is staged for the subject")
	}
}
