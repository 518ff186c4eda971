package cnwlicensing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing/licensestore"
)

// newAuthorityServer exposes a registry's activate and deactivate
// operations over HTTP the way the licensing server does, and issues one
// license to activate against.
func newAuthorityServer(t *testing.T) (*Registry, *licensestore.License, *httptest.Server) {
	t.Helper()
	reg := newTestRegistry(t)
	lic, err := reg.Issue(context.Background(), IssueRequest{CustomerName: "Acme Robotics"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/activations":
			var req ActivationRequest
			json.NewDecoder(r.Body).Decode(&req)
			act, err := reg.Activate(r.Context(), req.LicenseKey, req.MachineID)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{"code": "LICENSE_NOT_FOUND", "message": err.Error()},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": ActivationResponse{
					ID:            act.ID,
					LicenseID:     act.LicenseID,
					MachineID:     act.MachineID,
					ActivationKey: act.ActivationKey,
					ActivatedAt:   act.ActivatedAt,
				},
			})
		case "/v1/activations/deactivate":
			var req DeactivationRequest
			json.NewDecoder(r.Body).Decode(&req)
			lic, err := reg.LicenseByKey(r.Context(), req.LicenseKey)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{"code": "LICENSE_NOT_FOUND", "message": err.Error()},
				})
				return
			}
			revoked, err := reg.Deactivate(r.Context(), lic.ID, req.MachineID)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": DeactivationResponse{Revoked: revoked},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return reg, lic, server
}

func TestManager_EnsureActivated_OnlineThenOffline(t *testing.T) {
	reg, lic, server := newAuthorityServer(t)
	proofPath := filepath.Join(t.TempDir(), "proof.json")

	mgr, err := NewManager(reg.verifier,
		WithOnlineClient(NewOnlineClient(server.URL, "test-key")),
		WithProofPath(proofPath),
		WithMachineID("machine-42"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First call goes online. The customer types the word presentation.
	key, err := LicenseKeyFromHex(lic.LicenseKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	proof, err := mgr.EnsureActivated(context.Background(), key.Words())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proof.LicenseKey != lic.LicenseKey {
		t.Errorf("proof stores %q, want the normalized hex key", proof.LicenseKey)
	}
	if proof.MachineID != "machine-42" {
		t.Errorf("expected machine-42, got %s", proof.MachineID)
	}
	if !reg.verifier.VerifyProof(proof) {
		t.Error("saved proof does not verify")
	}

	// Later calls are satisfied from disk: closing the server proves no
	// network traffic happens.
	server.Close()
	offline, err := mgr.EnsureActivated(context.Background(), lic.LicenseKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offline.ActivationKey != proof.ActivationKey {
		t.Error("offline check returned a different activation key")
	}
}

func TestManager_EnsureActivated_NoProofNoClient(t *testing.T) {
	reg := newTestRegistry(t)
	mgr, err := NewManager(reg.verifier,
		WithProofPath(filepath.Join(t.TempDir(), "proof.json")),
		WithMachineID("machine-42"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = mgr.EnsureActivated(context.Background(), sequentialKey().Hex())
	if !errors.Is(err, ErrNotActivated) {
		t.Errorf("expected ErrNotActivated, got %v", err)
	}
}

func TestManager_EnsureActivated_RejectsUnverifiableActivation(t *testing.T) {
	// The server signs with a key the manager does not trust.
	_, lic, server := newAuthorityServer(t)
	proofPath := filepath.Join(t.TempDir(), "proof.json")

	mgr, err := NewManager(newTestSigner(t).Verifier(),
		WithOnlineClient(NewOnlineClient(server.URL, "test-key")),
		WithProofPath(proofPath),
		WithMachineID("machine-42"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = mgr.EnsureActivated(context.Background(), lic.LicenseKey)
	if !errors.Is(err, ErrActivationInvalid) {
		t.Errorf("expected ErrActivationInvalid, got %v", err)
	}
	if _, err := os.Stat(proofPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("an unverifiable activation must not be saved")
	}
}

func TestManager_EnsureActivated_ReplacesStaleProof(t *testing.T) {
	reg, lic, server := newAuthorityServer(t)
	proofPath := filepath.Join(t.TempDir(), "proof.json")

	// A proof bound to some other machine is already on disk.
	stale := &ActivationProof{
		SchemaVersion: proofSchemaVersion,
		LicenseKey:    lic.LicenseKey,
		MachineID:     "machine-99",
		ActivationKey: "aa11",
		ActivatedAt:   testClock(),
	}
	if err := stale.Save(proofPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr, err := NewManager(reg.verifier,
		WithOnlineClient(NewOnlineClient(server.URL, "test-key")),
		WithProofPath(proofPath),
		WithMachineID("machine-42"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proof, err := mgr.EnsureActivated(context.Background(), lic.LicenseKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proof.MachineID != "machine-42" {
		t.Errorf("expected a fresh activation for machine-42, got %s", proof.MachineID)
	}

	saved, err := LoadActivationProof(proofPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.MachineID != "machine-42" {
		t.Error("stale proof was not replaced on disk")
	}
}

func TestManager_EnsureActivated_MalformedKey(t *testing.T) {
	reg := newTestRegistry(t)
	mgr, err := NewManager(reg.verifier, WithMachineID("machine-42"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = mgr.EnsureActivated(context.Background(), "bogus")
	if !errors.Is(err, ErrKeyFormat) {
		t.Errorf("expected ErrKeyFormat, got %v", err)
	}
}

func TestManager_Deactivate(t *testing.T) {
	reg, lic, server := newAuthorityServer(t)
	proofPath := filepath.Join(t.TempDir(), "proof.json")

	mgr, err := NewManager(reg.verifier,
		WithOnlineClient(NewOnlineClient(server.URL, "test-key")),
		WithProofPath(proofPath),
		WithMachineID("machine-42"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proof, err := mgr.EnsureActivated(context.Background(), lic.LicenseKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mgr.Deactivate(context.Background(), lic.LicenseKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(proofPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("proof file should be removed on deactivation")
	}

	// The registry no longer accepts the old activation key.
	valid, err := reg.Validate(context.Background(), lic.LicenseKey, "machine-42", proof.ActivationKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if valid {
		t.Error("deactivated machine still validates")
	}
}

func TestManager_Deactivate_RequiresClient(t *testing.T) {
	reg := newTestRegistry(t)
	mgr, err := NewManager(reg.verifier, WithMachineID("machine-42"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mgr.Deactivate(context.Background(), sequentialKey().Hex()); err == nil {
		t.Error("expected an error without an online client")
	}
}

func TestNewManager_RequiresVerifier(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Error("expected an error for a nil verifier")
	}
}
