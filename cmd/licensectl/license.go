package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-licensing-core/cnwlicensing"
)

// issueCmd mints a new license and prints its key.
func issueCmd() *cobra.Command {
	var customer, notes string
	var words bool
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new license key",
		Long: `Issue a fresh 64-byte license key and persist it as the active license.
Fails when another license is still active; revoke it first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				lic, err := reg.Issue(ctx, cnwlicensing.IssueRequest{
					CustomerName: customer,
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				keyText := lic.LicenseKey
				if words {
					key, err := cnwlicensing.LicenseKeyFromHex(lic.LicenseKey)
					if err != nil {
						return err
					}
					keyText = key.Words()
				}
				fmt.Printf("License %s issued\n", lic.ID)
				fmt.Println(keyText)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "Customer name recorded with the license")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes recorded with the license")
	cmd.Flags().BoolVar(&words, "words", false, "Print the key in word format")
	return cmd
}

// revokeCmd marks a license inactive.
func revokeCmd() *cobra.Command {
	var licenseID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				if err := reg.Revoke(ctx, licenseID); err != nil {
					return err
				}
				fmt.Printf("License %s revoked\n", licenseID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&licenseID, "license", "", "License ID (required)")
	cmd.MarkFlagRequired("license")
	return cmd
}

// reactivateCmd returns a revoked license to the active state.
func reactivateCmd() *cobra.Command {
	var licenseID string
	cmd := &cobra.Command{
		Use:   "reactivate",
		Short: "Return a revoked license to the active state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				if err := reg.Reactivate(ctx, licenseID); err != nil {
					return err
				}
				fmt.Printf("License %s reactivated\n", licenseID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&licenseID, "license", "", "License ID (required)")
	cmd.MarkFlagRequired("license")
	return cmd
}

// listCmd prints licenses, or the activations of one license.
func listCmd() *cobra.Command {
	var licenseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List licenses, or activations for one license",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRegistry(cmd, func(ctx context.Context, reg *cnwlicensing.Registry) error {
				if licenseID != "" {
					return printActivations(ctx, reg, licenseID)
				}
				return printLicenses(ctx, reg)
			})
		},
	}
	cmd.Flags().StringVar(&licenseID, "license", "", "List activations for this license instead")
	return cmd
}

func printLicenses(ctx context.Context, reg *cnwlicensing.Registry) error {
	licenses, err := reg.Licenses(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tACTIVE\tCUSTOMER\tCREATED AT\tKEY")
	for _, lic := range licenses {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%.16s...\n",
			lic.ID, lic.IsActive, lic.CustomerName,
			lic.CreatedAt.Format("2006-01-02 15:04:05"), lic.LicenseKey)
	}
	return w.Flush()
}

func printActivations(ctx context.Context, reg *cnwlicensing.Registry, licenseID string) error {
	activations, err := reg.Activations(ctx, licenseID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tMACHINE\tACTIVE\tACTIVATED AT\tDEACTIVATED AT")
	for _, act := range activations {
		deactivated := "-"
		if act.DeactivatedAt != nil {
			deactivated = act.DeactivatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			act.ID, act.MachineID, act.IsActive,
			act.ActivatedAt.Format("2006-01-02 15:04:05"), deactivated)
	}
	return w.Flush()
}
