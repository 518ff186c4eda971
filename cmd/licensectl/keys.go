package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing"
)

// keygenCmd generates the authority's Ed25519 key pair.
func keygenCmd() *cobra.Command {
	var privPath, pubPath string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the authority's Ed25519 key pair",
		Long: `Generate a fresh Ed25519 key pair in PEM format. The private key stays
with the authority and signs activations; the public key is embedded in
client deployments to verify them. This is a one-time bootstrap step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			privPEM, pubPEM, err := cnwlicensing.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			fmt.Printf("Private key written to %s\n", privPath)
			fmt.Printf("Public key written to %s\n", pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&privPath, "private", "cnw-signing.pem", "Output path for the private key")
	cmd.Flags().StringVar(&pubPath, "public", "cnw-public.pem", "Output path for the public key")
	return cmd
}

// convertCmd re-encodes a license key between its two presentations.
func convertCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "convert <key>",
		Short: "Re-encode a license key between hex and word formats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cnwlicensing.ParseLicenseKey(args[0])
			if err != nil {
				return err
			}
			switch to {
			case "hex":
				fmt.Println(key.Hex())
			case "words":
				fmt.Println(key.Words())
			default:
				return fmt.Errorf("unknown format %q: want hex or words", to)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "hex", "Target format: hex or words")
	return cmd
}
