package cnwlicensing

import "time"

// ActivationRequest is the request body for the /v1/activations endpoint.
type ActivationRequest struct {
	LicenseKey string `json:"license_key"`
	MachineID  string `json:"machine_id"`
	Hostname   string `json:"hostname,omitempty"`
	OS         string `json:"os,omitempty"`
}

// ActivationResponse is the activation record returned by the server.
// The server wraps this in {data: ...}.
type ActivationResponse struct {
	ID            string    `json:"id"`
	LicenseID     string    `json:"license_id"`
	MachineID     string    `json:"machine_id"`
	ActivationKey string    `json:"activation_key"`
	ActivatedAt   time.Time `json:"activated_at"`
}

// DeactivationRequest is the request body for the
// /v1/activations/deactivate endpoint.
type DeactivationRequest struct {
	LicenseKey string `json:"license_key"`
	MachineID  string `json:"machine_id"`
}

// DeactivationResponse reports how many activations the server revoked.
// The server wraps this in {data: ...}.
type DeactivationResponse struct {
	Revoked int64 `json:"revoked"`
}

// ValidationRequest is the request body for the /v1/validate endpoint.
type ValidationRequest struct {
	LicenseKey    string `json:"license_key"`
	MachineID     string `json:"machine_id"`
	ActivationKey string `json:"activation_key"`
}

// ValidationResponse is the response from the /v1/validate endpoint.
// The server returns this directly (not wrapped in {data: ...}). It
// deliberately carries no failure reason.
type ValidationResponse struct {
	Valid bool `json:"valid"`
}
