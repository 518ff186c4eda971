// Package cnwlicensing implements the core of the CNW Licensing
// Authority: 64-byte license keys with hex and word presentations,
// Ed25519-signed machine activations, and the registry state machine
// that issues, revokes and validates them.
//
// Install with:
//
//	go get github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing
//
// # Quick Start
//
// On the authority side, back a Registry with a store and a signing key:
//
//	signer, _ := cnwlicensing.SignerFromPEM(privPEM)
//	reg, _ := cnwlicensing.NewRegistry(store, cnwlicensing.WithSigner(signer))
//	lic, err := reg.Issue(ctx, cnwlicensing.IssueRequest{CustomerName: "ACME"})
//	act, err := reg.Activate(ctx, lic.LicenseKey, machineID)
//
// # Client Machines
//
// Client deployments embed only the authority's public key and keep a
// local activation proof:
//
//	verifier, _ := cnwlicensing.VerifierFromPEM(pubPEM)
//	m, _ := cnwlicensing.NewManager(verifier,
//	    cnwlicensing.WithOnlineClient(cnwlicensing.NewOnlineClient(serverURL, apiKey)))
//	proof, err := m.EnsureActivated(ctx, licenseKey)
package cnwlicensing
