package cnwlicensing

// activationMessagePrefix domain-separates activation signatures from any
// other signing use of the authority key. It is part of the wire format:
// changing it is a breaking protocol version bump that invalidates every
// previously issued activation.
const activationMessagePrefix = "cnw-license-activation/v1:"

// buildActivationMessage constructs the byte string signed by the
// authority and reconstructed by verifiers:
//
//	<prefix> || <128-char lowercase hex license key> || ':' || <machine id>
//
// licenseKeyHex must already be in canonical form (see NormalizeKey);
// machineID is included verbatim as UTF-8.
func buildActivationMessage(licenseKeyHex, machineID string) []byte {
	return []byte(activationMessagePrefix + licenseKeyHex + ":" + machineID)
}
