package licensestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// newSQLiteTestStore opens a store on a throwaway database file. A file
// is used rather than ":memory:" because the connection pool would give
// each connection its own in-memory database.
func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "licensing.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(context.Background()); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestSQLiteStore_InsertLicense_RoundTrip(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	lic := testLicense("lic-1", "key-1", true, baseTime)
	lic.CustomerName = "Acme Robotics"
	lic.Notes = "pilot"
	if err := s.InsertLicense(ctx, lic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.LicenseByID(ctx, "lic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CustomerName != "Acme Robotics" || got.Notes != "pilot" {
		t.Errorf("metadata did not round trip: %+v", got)
	}
	if !got.IsActive {
		t.Error("expected the license to be active")
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("expected created_at %v, got %v", baseTime, got.CreatedAt)
	}

	byKey, err := s.LicenseByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byKey.ID != "lic-1" {
		t.Errorf("expected lic-1, got %s", byKey.ID)
	}
}

func TestSQLiteStore_InsertLicense_InactiveZeroValues(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	// An inactive license with empty metadata must persist exactly,
	// not be skipped as zero values.
	if err := s.InsertLicense(ctx, testLicense("lic-1", "key-1", false, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.LicenseByID(ctx, "lic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsActive {
		t.Error("expected the license to be inactive")
	}
}

func TestSQLiteStore_InsertLicense_DuplicateKey(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	if err := s.InsertLicense(ctx, testLicense("lic-1", "key-1", false, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.InsertLicense(ctx, testLicense("lic-2", "key-1", false, baseTime))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestSQLiteStore_InsertLicense_SecondActive(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	if err := s.InsertLicense(ctx, testLicense("lic-1", "key-1", true, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The partial unique index rejects a second active license.
	err := s.InsertLicense(ctx, testLicense("lic-2", "key-2", true, baseTime))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// Inactive rows are outside the index.
	if err := s.InsertLicense(ctx, testLicense("lic-3", "key-3", false, baseTime)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.InsertLicense(ctx, testLicense("lic-4", "key-4", false, baseTime)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSQLiteStore_LicenseByID_NotFound(t *testing.T) {
	s := newSQLiteTestStore(t)

	if _, err := s.LicenseByID(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ActiveLicense(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_SetLicenseActive(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	if err := s.InsertLicense(ctx, testLicense("lic-1", "key-1", true, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertLicense(ctx, testLicense("lic-2", "key-2", false, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Activating a second license hits the partial unique index.
	if err := s.SetLicenseActive(ctx, "lic-2", true); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// Revoking twice is idempotent.
	if err := s.SetLicenseActive(ctx, "lic-1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetLicenseActive(ctx, "lic-1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// With the slot free the other license can be activated.
	if err := s.SetLicenseActive(ctx, "lic-2", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, err := s.ActiveLicense(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.ID != "lic-2" {
		t.Errorf("expected lic-2, got %s", active.ID)
	}
}

func TestSQLiteStore_SetLicenseActive_NotFound(t *testing.T) {
	s := newSQLiteTestStore(t)

	if err := s.SetLicenseActive(context.Background(), "absent", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Licenses_NewestFirst(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	if err := s.InsertLicense(ctx, testLicense("lic-old", "key-1", false, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertLicense(ctx, testLicense("lic-new", "key-2", false, baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	licenses, err := s.Licenses(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(licenses) != 2 {
		t.Fatalf("expected 2 licenses, got %d", len(licenses))
	}
	if licenses[0].ID != "lic-new" || licenses[1].ID != "lic-old" {
		t.Errorf("expected newest first, got %s then %s", licenses[0].ID, licenses[1].ID)
	}
}

func TestSQLiteStore_Activations_OrderAndFilter(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	for _, act := range []*Activation{
		testActivation("act-2", "lic-1", "machine-1", baseTime.Add(time.Minute)),
		testActivation("act-1", "lic-1", "machine-1", baseTime),
		testActivation("act-3", "lic-1", "machine-2", baseTime),
		testActivation("act-4", "lic-2", "machine-1", baseTime),
	} {
		if err := s.InsertActivation(ctx, act); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	acts, err := s.Activations(ctx, "lic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(acts) != 3 {
		t.Fatalf("expected 3 activations, got %d", len(acts))
	}
	if acts[len(acts)-1].ID != "act-2" {
		t.Errorf("expected act-2 last (newest), got %s", acts[len(acts)-1].ID)
	}

	machine, err := s.MachineActivations(ctx, "lic-1", "machine-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(machine) != 2 {
		t.Fatalf("expected 2 activations, got %d", len(machine))
	}
	if machine[0].ID != "act-1" || machine[1].ID != "act-2" {
		t.Errorf("expected oldest first, got %s then %s", machine[0].ID, machine[1].ID)
	}
}

func TestSQLiteStore_ActivationByID(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	if err := s.InsertActivation(ctx, testActivation("act-1", "lic-1", "machine-1", baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	act, err := s.ActivationByID(ctx, "act-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if act.ActivationKey != "sig-act-1" {
		t.Errorf("expected sig-act-1, got %s", act.ActivationKey)
	}
	if act.DeactivatedAt != nil {
		t.Error("expected no deactivation stamp")
	}

	if _, err := s.ActivationByID(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DeactivateMachine(t *testing.T) {
	s := newSQLiteTestStore(t)
	ctx := context.Background()

	if err := s.InsertActivation(ctx, testActivation("act-1", "lic-1", "machine-1", baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertActivation(ctx, testActivation("act-2", "lic-1", "machine-1", baseTime.Add(time.Minute))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.InsertActivation(ctx, testActivation("act-3", "lic-1", "machine-2", baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := baseTime.Add(time.Hour)
	n, err := s.DeactivateMachine(ctx, "lic-1", "machine-1", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 revoked, got %d", n)
	}

	acts, err := s.MachineActivations(ctx, "lic-1", "machine-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, act := range acts {
		if act.IsActive {
			t.Errorf("activation %s still active", act.ID)
		}
		if act.DeactivatedAt == nil || !act.DeactivatedAt.Equal(at) {
			t.Errorf("activation %s missing deactivation stamp", act.ID)
		}
	}

	other, err := s.ActivationByID(ctx, "act-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !other.IsActive {
		t.Error("machine-2 activation should still be active")
	}

	// Nothing active remains, so a repeat revokes nothing.
	n, err = s.DeactivateMachine(ctx, "lic-1", "machine-1", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 revoked on repeat, got %d", n)
	}
}
