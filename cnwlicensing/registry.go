package cnwlicensing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing/licensestore"
)

// Registry is the authority-side state machine over licenses and machine
// activations. It issues license keys, revokes them, signs machine
// activations, and validates activation keys against persisted state.
//
// At most one license is active at any time across the whole registry.
// Issue checks this up front, but the check races with concurrent
// issuers; the store's uniqueness constraint is what actually decides,
// and Issue reports the loss as ErrLicenseConflict either way.
type Registry struct {
	store    licensestore.Store
	signer   *Signer
	verifier *Verifier
	logger   *slog.Logger
	now      func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSigner equips the registry to mint activation keys. Authority
// deployments set this; validation-only deployments leave it unset and
// Activate fails with ErrNoSigner.
func WithSigner(s *Signer) RegistryOption {
	return func(r *Registry) {
		r.signer = s
	}
}

// WithVerifier equips the registry to validate activation keys. When a
// signer is configured and no verifier is, the registry verifies with
// the public half of the signing key.
func WithVerifier(v *Verifier) RegistryOption {
	return func(r *Registry) {
		r.verifier = v
	}
}

// WithRegistryLogger sets the logger for license and activation state
// transitions. Defaults to a discarding logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock overrides the time source used to stamp created_at,
// activated_at and deactivated_at. Intended for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a license registry backed by store.
func NewRegistry(store licensestore.Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("a store is required")
	}
	r := &Registry{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.verifier == nil && r.signer != nil {
		r.verifier = r.signer.Verifier()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// IssueRequest carries the optional metadata recorded with a new license.
type IssueRequest struct {
	CustomerName string
	Notes        string
}

// Issue mints a fresh license key and persists it as the active license.
// If another license is currently active, Issue fails with
// ErrLicenseConflict and changes nothing; revoke the active license
// first.
func (r *Registry) Issue(ctx context.Context, req IssueRequest) (*licensestore.License, error) {
	existing, err := r.store.ActiveLicense(ctx)
	if err != nil && !errors.Is(err, licensestore.ErrNotFound) {
		return nil, fmt.Errorf("issue license: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: license %s is active, revoke it first", ErrLicenseConflict, existing.ID)
	}

	key, err := GenerateLicenseKey()
	if err != nil {
		return nil, fmt.Errorf("issue license: %w", err)
	}
	lic := &licensestore.License{
		ID:           uuid.NewString(),
		LicenseKey:   key.Hex(),
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		IsActive:     true,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.InsertLicense(ctx, lic); err != nil {
		return nil, fmt.Errorf("issue license: %w", mapStoreError(err, ErrLicenseNotFound))
	}

	r.logger.InfoContext(ctx, "license issued",
		"license_id", lic.ID,
		"customer", lic.CustomerName,
	)
	return lic, nil
}

// Revoke marks the license inactive. Activations signed under it are
// kept untouched for audit. Revoking an already inactive license is a
// no-op.
func (r *Registry) Revoke(ctx context.Context, licenseID string) error {
	if err := r.store.SetLicenseActive(ctx, licenseID, false); err != nil {
		return fmt.Errorf("revoke license: %w", mapStoreError(err, ErrLicenseNotFound))
	}
	r.logger.InfoContext(ctx, "license revoked", "license_id", licenseID)
	return nil
}

// Reactivate administratively returns a revoked license to the active
// state. It fails with ErrLicenseConflict when a different license is
// currently active.
func (r *Registry) Reactivate(ctx context.Context, licenseID string) error {
	if err := r.store.SetLicenseActive(ctx, licenseID, true); err != nil {
		return fmt.Errorf("reactivate license: %w", mapStoreError(err, ErrLicenseNotFound))
	}
	r.logger.InfoContext(ctx, "license reactivated", "license_id", licenseID)
	return nil
}

// Activate signs an activation key binding licenseKey to machineID and
// persists the resulting activation. The license must exist in the
// registry; the key may be given in either presentation. Activating the
// same machine again appends a new activation row rather than replacing
// earlier ones.
func (r *Registry) Activate(ctx context.Context, licenseKey, machineID string) (*licensestore.Activation, error) {
	if r.signer == nil {
		return nil, ErrNoSigner
	}
	if machineID == "" {
		return nil, fmt.Errorf("a machine id is required")
	}
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return nil, err
	}

	lic, err := r.store.LicenseByKey(ctx, keyHex)
	if err != nil {
		return nil, fmt.Errorf("activate machine: %w", mapStoreError(err, ErrLicenseNotFound))
	}
	activationKey, err := r.signer.Sign(keyHex, machineID)
	if err != nil {
		return nil, fmt.Errorf("activate machine: %w", err)
	}
	act := &licensestore.Activation{
		ID:            uuid.NewString(),
		LicenseID:     lic.ID,
		MachineID:     machineID,
		ActivationKey: activationKey,
		IsActive:      true,
		ActivatedAt:   r.now().UTC(),
	}
	if err := r.store.InsertActivation(ctx, act); err != nil {
		return nil, fmt.Errorf("activate machine: %w", mapStoreError(err, ErrLicenseNotFound))
	}

	r.logger.InfoContext(ctx, "machine activated",
		"license_id", lic.ID,
		"machine_id", machineID,
		"activation_id", act.ID,
	)
	return act, nil
}

// Deactivate revokes every active activation for the (license, machine)
// pair, stamping the deactivation time. Rows are kept for audit. It
// returns the number of activations revoked; a machine with none is a
// no-op, not an error.
func (r *Registry) Deactivate(ctx context.Context, licenseID, machineID string) (int64, error) {
	revoked, err := r.store.DeactivateMachine(ctx, licenseID, machineID, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate machine: %w", err)
	}
	r.logger.InfoContext(ctx, "machine deactivated",
		"license_id", licenseID,
		"machine_id", machineID,
		"revoked", revoked,
	)
	return revoked, nil
}

// Validate reports whether activationKey is currently good for
// (licenseKey, machineID). The signature must verify against the
// registry's public key AND a persisted activation for the pair must
// still be active: a cryptographically valid activation key whose row
// was revoked, or that the registry never recorded, reports false.
// Failures carry no reason.
func (r *Registry) Validate(ctx context.Context, licenseKey, machineID, activationKey string) (bool, error) {
	if r.verifier == nil {
		return false, ErrNoVerifier
	}
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return false, nil
	}
	if !r.verifier.Verify(keyHex, machineID, activationKey) {
		return false, nil
	}

	lic, err := r.store.LicenseByKey(ctx, keyHex)
	if err != nil {
		if errors.Is(err, licensestore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("validate activation: %w", err)
	}
	activations, err := r.store.MachineActivations(ctx, lic.ID, machineID)
	if err != nil {
		return false, fmt.Errorf("validate activation: %w", err)
	}
	for i := range activations {
		if activations[i].IsActive && strings.EqualFold(activations[i].ActivationKey, activationKey) {
			return true, nil
		}
	}
	return false, nil
}

// ActiveLicense returns the currently active license, or
// ErrLicenseNotFound when none is active.
func (r *Registry) ActiveLicense(ctx context.Context) (*licensestore.License, error) {
	lic, err := r.store.ActiveLicense(ctx)
	if err != nil {
		return nil, mapStoreError(err, ErrLicenseNotFound)
	}
	return lic, nil
}

// LicenseByKey looks up a license by its key in either presentation.
func (r *Registry) LicenseByKey(ctx context.Context, licenseKey string) (*licensestore.License, error) {
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return nil, err
	}
	lic, err := r.store.LicenseByKey(ctx, keyHex)
	if err != nil {
		return nil, mapStoreError(err, ErrLicenseNotFound)
	}
	return lic, nil
}

// Licenses returns every license, newest first.
func (r *Registry) Licenses(ctx context.Context) ([]licensestore.License, error) {
	return r.store.Licenses(ctx)
}

// Activations returns every activation recorded for a license, oldest
// first, including revoked ones.
func (r *Registry) Activations(ctx context.Context, licenseID string) ([]licensestore.Activation, error) {
	return r.store.Activations(ctx, licenseID)
}

// mapStoreError converts store sentinels to registry sentinels. notFound
// names the sentinel substituted for licensestore.ErrNotFound, which
// depends on the entity the caller was touching.
func mapStoreError(err, notFound error) error {
	switch {
	case errors.Is(err, licensestore.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrLicenseConflict, err)
	case errors.Is(err, licensestore.ErrNotFound):
		return notFound
	}
	return err
}
