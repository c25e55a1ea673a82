package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/bower/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := NewMockStore()
	// Mask keys containing "password" or "ssn"
	mw := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	snap := testSnapshot("pii-session")
	snap.State["username"] = "jdoe"
	snap.State["user_password"] = "secret123"
	snap.State["details"] = map[string]any{
		"address":    "123 St",
		"ssn_number": "999-99-9999",
	}
	snap.State["safe_data"] = "public"

	// 1. Save
	if err := secureStore.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify the in-memory snapshot is NOT MODIFIED (Immutability check)
	if snap.State["user_password"] != "secret123" {
		t.Error("Middleware modified original snapshot in memory!")
	}

	// 2. Load from Underlying Store (Should be masked)
	stored, err := underlyingStore.Load(ctx, "pii-session")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}

	if stored.State["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.State["user_password"] != "***" {
		t.Errorf("Password should be masked, got: %v", stored.State["user_password"])
	}

	details := stored.State["details"].(map[string]any)
	if details["ssn_number"] != "***" {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Errorf("Address shouldn't be masked, got: %v", details["address"])
	}
}
