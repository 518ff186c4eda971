package cnwlicensing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// defaultProofPath is where the activation proof is kept unless
// WithProofPath overrides it.
const defaultProofPath = "cnw-activation.json"

// Manager is the client-side orchestrator. It activates this machine
// against the CNW Licensing Server once, persists the activation proof,
// and satisfies later checks from that proof offline using the
// authority's public key.
type Manager struct {
	verifier  *Verifier
	client    *OnlineClient
	proofPath string
	machineID string
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOnlineClient sets the online client used to request activations.
// Without one the Manager can only verify an existing proof.
func WithOnlineClient(c *OnlineClient) ManagerOption {
	return func(m *Manager) {
		m.client = c
	}
}

// WithProofPath sets where the activation proof file is kept.
// Default: "cnw-activation.json" in the working directory.
func WithProofPath(path string) ManagerOption {
	return func(m *Manager) {
		m.proofPath = path
	}
}

// WithMachineID overrides the machine identifier. Defaults to
// GenerateMachineID.
func WithMachineID(id string) ManagerOption {
	return func(m *Manager) {
		m.machineID = id
	}
}

// WithManagerLogger sets the logger. Defaults to a discarding logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a client-side activation manager. The verifier is
// required: every proof, whether read from disk or fresh from the
// server, is checked against the authority's public key before it is
// trusted.
func NewManager(verifier *Verifier, opts ...ManagerOption) (*Manager, error) {
	if verifier == nil {
		return nil, fmt.Errorf("a verifier is required")
	}
	m := &Manager{
		verifier:  verifier,
		proofPath: defaultProofPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m, nil
}

// EnsureActivated makes sure this machine holds a verified activation
// for licenseKey:
//  1. Resolves the machine identifier
//  2. Tries the local proof file; a proof for this key and machine that
//     verifies is accepted without any network traffic
//  3. Otherwise requests a fresh activation from the server
//  4. Verifies the returned activation key before trusting it
//  5. Saves the proof for subsequent calls
func (m *Manager) EnsureActivated(ctx context.Context, licenseKey string) (*ActivationProof, error) {
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return nil, err
	}
	machineID, err := m.resolveMachineID()
	if err != nil {
		return nil, err
	}

	// 2. Local proof short-circuit
	if proof, err := LoadActivationProof(m.proofPath); err == nil {
		proofHex, err := NormalizeKey(proof.LicenseKey)
		if err == nil && proofHex == keyHex && proof.MachineID == machineID && m.verifier.VerifyProof(proof) {
			m.logger.DebugContext(ctx, "activation proof verified locally", "proof_path", m.proofPath)
			return proof, nil
		}
	}

	if m.client == nil {
		return nil, fmt.Errorf("%w: no valid proof at %s and no online client configured", ErrNotActivated, m.proofPath)
	}

	// 3. Fresh activation
	hostname, _ := os.Hostname()
	resp, err := m.client.Activate(ctx, ActivationRequest{
		LicenseKey: keyHex,
		MachineID:  machineID,
		Hostname:   hostname,
		OS:         runtime.GOOS,
	})
	if err != nil {
		return nil, fmt.Errorf("activate with server: %w", err)
	}

	proof := &ActivationProof{
		SchemaVersion: proofSchemaVersion,
		LicenseKey:    keyHex,
		MachineID:     machineID,
		ActivationKey: resp.ActivationKey,
		ActivatedAt:   resp.ActivatedAt,
	}

	// 4. Never trust an activation key that does not verify
	if !m.verifier.VerifyProof(proof) {
		return nil, fmt.Errorf("%w: server returned an activation key that does not verify", ErrActivationInvalid)
	}

	// 5. Persist for next time
	if err := proof.Save(m.proofPath); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "machine activated",
		"machine_id", machineID,
		"proof_path", m.proofPath,
	)
	return proof, nil
}

// Deactivate revokes this machine's activations for licenseKey on the
// server and removes the local proof file.
func (m *Manager) Deactivate(ctx context.Context, licenseKey string) error {
	if m.client == nil {
		return fmt.Errorf("an online client is required for Deactivate")
	}
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return err
	}
	machineID, err := m.resolveMachineID()
	if err != nil {
		return err
	}

	if _, err := m.client.Deactivate(ctx, DeactivationRequest{
		LicenseKey: keyHex,
		MachineID:  machineID,
	}); err != nil {
		return fmt.Errorf("deactivate with server: %w", err)
	}
	if err := os.Remove(m.proofPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove proof file: %w", err)
	}
	m.logger.InfoContext(ctx, "machine deactivated", "machine_id", machineID)
	return nil
}

func (m *Manager) resolveMachineID() (string, error) {
	if m.machineID != "" {
		return m.machineID, nil
	}
	id, err := GenerateMachineID()
	if err != nil {
		return "", fmt.Errorf("generate machine id: %w", err)
	}
	return id, nil
}
