// Package licensestore provides persistence backends for licenses and
// machine activations.
package licensestore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound reports that no record matches the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate reports that a write violated a uniqueness
	// constraint: a duplicate license key, or a second license row
	// marked active.
	ErrDuplicate = errors.New("duplicate record")
)

// License is a persisted license. LicenseKey holds the canonical
// 128-character lowercase hex form and is unique across the store. At
// most one License row may be active at any time across the entire
// store; every backend enforces this with a storage-level constraint so
// concurrent writers cannot both succeed.
type License struct {
	ID           string    `json:"id" bson:"_id"`
	LicenseKey   string    `json:"license_key" bson:"license_key"`
	CustomerName string    `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	Notes        string    `json:"notes,omitempty" bson:"notes,omitempty"`
	IsActive     bool      `json:"is_active" bson:"is_active"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// Activation is a persisted machine activation. Rows are never deleted:
// deactivation clears IsActive and stamps DeactivatedAt, preserving the
// audit trail. Multiple active rows may exist for the same
// (license, machine) pair; re-activation does not revoke earlier rows.
type Activation struct {
	ID            string     `json:"id" bson:"_id"`
	LicenseID     string     `json:"license_id" bson:"license_id"`
	MachineID     string     `json:"machine_id" bson:"machine_id"`
	ActivationKey string     `json:"activation_key" bson:"activation_key"`
	IsActive      bool       `json:"is_active" bson:"is_active"`
	ActivatedAt   time.Time  `json:"activated_at" bson:"activated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" bson:"deactivated_at,omitempty"`
}

// Store persists licenses and activations.
type Store interface {
	// InsertLicense persists a new license. It fails with ErrDuplicate
	// when the license key already exists or when the license is active
	// and another active license is already present.
	InsertLicense(ctx context.Context, lic *License) error

	// LicenseByID returns the license with the given ID, or ErrNotFound.
	LicenseByID(ctx context.Context, id string) (*License, error)

	// LicenseByKey returns the license with the given canonical hex key,
	// or ErrNotFound.
	LicenseByKey(ctx context.Context, keyHex string) (*License, error)

	// ActiveLicense returns the currently active license, or ErrNotFound
	// when none is active.
	ActiveLicense(ctx context.Context) (*License, error)

	// SetLicenseActive updates a license's active flag. It fails with
	// ErrNotFound for unknown IDs and with ErrDuplicate when activating
	// would put a second license into the active state.
	SetLicenseActive(ctx context.Context, id string, active bool) error

	// Licenses returns all licenses, newest first.
	Licenses(ctx context.Context) ([]License, error)

	// InsertActivation persists a new activation row.
	InsertActivation(ctx context.Context, act *Activation) error

	// ActivationByID returns the activation with the given ID, or
	// ErrNotFound.
	ActivationByID(ctx context.Context, id string) (*Activation, error)

	// Activations returns all activation rows for a license, oldest
	// first.
	Activations(ctx context.Context, licenseID string) ([]Activation, error)

	// MachineActivations returns all activation rows for a
	// (license, machine) pair, oldest first.
	MachineActivations(ctx context.Context, licenseID, machineID string) ([]Activation, error)

	// DeactivateMachine marks every active activation row for the
	// (license, machine) pair inactive and stamps DeactivatedAt.
	// It returns the number of rows updated; zero is not an error.
	DeactivateMachine(ctx context.Context, licenseID, machineID string, at time.Time) (int64, error)

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
