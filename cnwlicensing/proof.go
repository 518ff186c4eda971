package cnwlicensing

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// proofSchemaVersion is the activation proof file format version.
const proofSchemaVersion = 1

// ActivationProof is the JSON record a client keeps after a successful
// activation. It carries everything needed to re-verify the activation
// without contacting the server: the license key, the machine the
// activation is bound to, and the activation key the authority signed.
type ActivationProof struct {
	SchemaVersion int       `json:"schema_version"`
	LicenseKey    string    `json:"license_key"`
	MachineID     string    `json:"machine_id"`
	ActivationKey string    `json:"activation_key"`
	ActivatedAt   time.Time `json:"activated_at"`
}

// ParseActivationProof parses a raw JSON activation proof. It fails with
// ErrProofInvalid when the JSON is malformed or a required field is
// missing. It does not check the signature; use Verifier.VerifyProof
// for that.
func ParseActivationProof(raw []byte) (*ActivationProof, error) {
	var p ActivationProof
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}
	if p.LicenseKey == "" || p.MachineID == "" || p.ActivationKey == "" {
		return nil, ErrProofInvalid
	}
	return &p, nil
}

// LoadActivationProof reads and parses an activation proof file.
func LoadActivationProof(path string) (*ActivationProof, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proof file: %w", err)
	}
	return ParseActivationProof(raw)
}

// Save writes the proof to path as indented JSON, readable only by the
// owner.
func (p *ActivationProof) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write proof file: %w", err)
	}
	return nil
}
