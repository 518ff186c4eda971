package cnwlicensing

import (
	"crypto/rand"
	"fmt"
)

// GenerateLicenseKey draws a fresh 64-byte license key from the
// cryptographically secure random source. No uniqueness check is
// performed against previously issued keys: the 512-bit entropy space
// makes a collision negligible, and the license store carries a unique
// constraint on the key column as a defensive backstop.
func GenerateLicenseKey() (LicenseKey, error) {
	var k LicenseKey
	if _, err := rand.Read(k[:]); err != nil {
		return LicenseKey{}, fmt.Errorf("read random bytes: %w", err)
	}
	return k, nil
}

// GenerateLicenseKeyText generates a license key and returns it in the
// requested presentation.
func GenerateLicenseKeyText(f KeyFormat) (string, error) {
	k, err := GenerateLicenseKey()
	if err != nil {
		return "", err
	}
	return k.Encode(f), nil
}
