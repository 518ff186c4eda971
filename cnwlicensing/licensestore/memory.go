package licensestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral use. It
// enforces the same uniqueness constraints as the database backends.
type MemoryStore struct {
	mu          sync.Mutex
	licenses    map[string]License
	activations map[string]Activation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses:    make(map[string]License),
		activations: make(map[string]Activation),
	}
}

func (s *MemoryStore) InsertLicense(_ context.Context, lic *License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[lic.ID]; exists {
		return fmt.Errorf("%w: license id %s", ErrDuplicate, lic.ID)
	}
	for _, existing := range s.licenses {
		if existing.LicenseKey == lic.LicenseKey {
			return fmt.Errorf("%w: license key already exists", ErrDuplicate)
		}
		if lic.IsActive && existing.IsActive {
			return fmt.Errorf("%w: license %s is already active", ErrDuplicate, existing.ID)
		}
	}
	s.licenses[lic.ID] = *lic
	return nil
}

func (s *MemoryStore) LicenseByID(_ context.Context, id string) (*License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok {
		return nil, fmt.Errorf("%w: license %s", ErrNotFound, id)
	}
	return &lic, nil
}

func (s *MemoryStore) LicenseByKey(_ context.Context, keyHex string) (*License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lic := range s.licenses {
		if lic.LicenseKey == keyHex {
			out := lic
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: license key", ErrNotFound)
}

func (s *MemoryStore) ActiveLicense(_ context.Context) (*License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lic := range s.licenses {
		if lic.IsActive {
			out := lic
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: no active license", ErrNotFound)
}

func (s *MemoryStore) SetLicenseActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok {
		return fmt.Errorf("%w: license %s", ErrNotFound, id)
	}
	if active {
		for _, existing := range s.licenses {
			if existing.IsActive && existing.ID != id {
				return fmt.Errorf("%w: license %s is already active", ErrDuplicate, existing.ID)
			}
		}
	}
	lic.IsActive = active
	s.licenses[id] = lic
	return nil
}

func (s *MemoryStore) Licenses(_ context.Context) ([]License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]License, 0, len(s.licenses))
	for _, lic := range s.licenses {
		out = append(out, lic)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) InsertActivation(_ context.Context, act *Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activations[act.ID]; exists {
		return fmt.Errorf("%w: activation id %s", ErrDuplicate, act.ID)
	}
	s.activations[act.ID] = cloneActivation(*act)
	return nil
}

func (s *MemoryStore) ActivationByID(_ context.Context, id string) (*Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.activations[id]
	if !ok {
		return nil, fmt.Errorf("%w: activation %s", ErrNotFound, id)
	}
	out := cloneActivation(act)
	return &out, nil
}

func (s *MemoryStore) Activations(_ context.Context, licenseID string) ([]Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Activation
	for _, act := range s.activations {
		if act.LicenseID == licenseID {
			out = append(out, cloneActivation(act))
		}
	}
	sortActivations(out)
	return out, nil
}

func (s *MemoryStore) MachineActivations(_ context.Context, licenseID, machineID string) ([]Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Activation
	for _, act := range s.activations {
		if act.LicenseID == licenseID && act.MachineID == machineID {
			out = append(out, cloneActivation(act))
		}
	}
	sortActivations(out)
	return out, nil
}

func (s *MemoryStore) DeactivateMachine(_ context.Context, licenseID, machineID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, act := range s.activations {
		if act.LicenseID == licenseID && act.MachineID == machineID && act.IsActive {
			stamp := at
			act.IsActive = false
			act.DeactivatedAt = &stamp
			s.activations[id] = act
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

func sortActivations(acts []Activation) {
	sort.Slice(acts, func(i, j int) bool {
		if !acts[i].ActivatedAt.Equal(acts[j].ActivatedAt) {
			return acts[i].ActivatedAt.Before(acts[j].ActivatedAt)
		}
		return acts[i].ID < acts[j].ID
	})
}

// cloneActivation copies an activation so callers never share the
// DeactivatedAt pointer with the store.
func cloneActivation(act Activation) Activation {
	if act.DeactivatedAt != nil {
		stamp := *act.DeactivatedAt
		act.DeactivatedAt = &stamp
	}
	return act
}
