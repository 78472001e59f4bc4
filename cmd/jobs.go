package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	jobClient    string
	profilesFile string
)

var errClientRequired = errors.New("--client is required")

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Group a client's recurring alerts into root-cause clusters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jobClient == "" {
			return errClientRequired
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.services.Correlate(cmd.Context(), jobClient)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d clusters written (%d created, %d updated, %d unchanged, %d retired)\n",
			jobClient, len(res.Clusters), res.Created, res.Updated, res.Unchanged, res.Retired)
		for _, c := range res.Clusters {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s/%s x%d %s\n", c.Priority, c.Subject, c.Channel, c.Occurrences, c.CauseCategory)
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan-vulnerabilities",
	Short: "Recompute the vulnerability flag of every active equipment of a client",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jobClient == "" {
			return errClientRequired
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		flags, err := a.services.ScanClient(cmd.Context(), jobClient)
		if err != nil {
			return err
		}
		active := 0
		for _, f := range flags {
			if !f.Active {
				continue
			}
			active++
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s risk=%.2f %s\n", f.EquipmentID, f.Category, f.RiskScore, f.Reason)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d equipment scanned, %d vulnerable\n", jobClient, len(flags), active)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed-profiles",
	Short: "Load risk profiles from a YAML file into storage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.seedProfiles(cmd.Context(), profilesFile, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d profiles stored\n", n)
		return nil
	},
}

func init() {
	correlateCmd.Flags().StringVar(&jobClient, "client", "", "client id")
	scanCmd.Flags().StringVar(&jobClient, "client", "", "client id")
	seedCmd.Flags().StringVar(&profilesFile, "file", "", "profiles file (defaults to profiles_file from config)")
}
