package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing"
)

// activateCmd signs an activation key binding a license to a machine.
func activateCmd() *cobra.Command {
	var licenseKey, machineID string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Sign an activation key for a machine",
		Long: `Sign an activation key binding a license to a machine and record it in
the registry. Requires LICENSECTL_SIGNING_KEY_FILE. Without --machine the
identifier of the machine running licensectl is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if machineID == "" {
				id, err := cnwlicensing.GenerateMachineID()
				if err != nil {
					return err
				}
				machineID = id
			}
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				act, err := reg.Activate(ctx, licenseKey, machineID)
				if err != nil {
					return err
				}
				fmt.Printf("Activation %s for machine %s\n", act.ID, act.MachineID)
				fmt.Println(act.ActivationKey)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&licenseKey, "key", "", "License key, hex or word format (required)")
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine identifier (default: this machine)")
	cmd.MarkFlagRequired("key")
	return cmd
}

// deactivateCmd revokes a machine's activations.
func deactivateCmd() *cobra.Command {
	var licenseID, machineID string
	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Revoke a machine's activations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				revoked, err := reg.Deactivate(ctx, licenseID, machineID)
				if err != nil {
					return err
				}
				fmt.Printf("Revoked %d activation(s)\n", revoked)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&licenseID, "license", "", "License ID (required)")
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine identifier (required)")
	cmd.MarkFlagRequired("license")
	cmd.MarkFlagRequired("machine")
	return cmd
}

// validateCmd checks an activation key against the registry.
func validateCmd() *cobra.Command {
	var licenseKey, machineID, activationKey string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an activation key against the registry",
		Long: `Check that an activation key verifies cryptographically and that the
matching activation is still recorded as active. Requires
LICENSECTL_PUBLIC_KEY_FILE (or the signing key). Exits non-zero when the
activation is not valid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				valid, err := reg.Validate(ctx, licenseKey, machineID, activationKey)
				if err != nil {
					return err
				}
				if !valid {
					return fmt.Errorf("activation is not valid")
				}
				fmt.Println("valid")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&licenseKey, "key", "", "License key, hex or word format (required)")
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine identifier (required)")
	cmd.Flags().StringVar(&activationKey, "activation", "", "Activation key to check (required)")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("machine")
	cmd.MarkFlagRequired("activation")
	return cmd
}
