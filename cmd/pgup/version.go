package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm/pgup/internal/update"
	"github.com/pthm/pgup/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, version.Info())

		if !versionCheck {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		info, err := update.CheckWithCache(ctx)
		if err != nil {
			fmt.Fprintf(w, "Could not check for updates: %v\n", err)
			return nil
		}
		if info.UpdateAvailable {
			fmt.Fprintf(w, "A newer version is available: %s\n", info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintf(w, "  %s\n", info.ReleaseURL)
			}
		} else {
			fmt.Fprintln(w, "You are running the latest version.")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}
