package cnwlicensing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// GenerateMachineID produces a deterministic, reboot-safe identifier for
// the current machine. It hashes hostname, MAC addresses, OS,
// architecture, and machine-id (Linux) into a SHA-256 hex string.
//
// In container environments where MAC addresses may not be available,
// the identifier falls back to hostname + OS + arch + machine-id. For
// Kubernetes pods, consider setting a stable HOSTNAME env var or using
// the CNW_MACHINE_ID environment variable to override entirely.
func GenerateMachineID() (string, error) {
	// Allow explicit override via environment variable
	if id := os.Getenv("CNW_MACHINE_ID"); id != "" {
		return id, nil
	}

	var parts []string

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("get hostname: %w", err)
	}
	parts = append(parts, hostname)

	// MAC addresses (sorted for determinism, best-effort)
	macs, err := hardwareAddrs()
	if err == nil && len(macs) > 0 {
		parts = append(parts, macs...)
	}

	parts = append(parts, runtime.GOOS, runtime.GOARCH)

	// Machine ID (Linux only, best-effort)
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(machineID)))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// hardwareAddrs returns sorted, non-loopback hardware MAC addresses.
func hardwareAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac != "" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}
