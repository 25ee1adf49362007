package commands

import (
	"log/slog"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/lib/serviceutil"
	"os"

	"github.com/spf13/cobra"
)

var (
	fetchJson   *bool
	fetchPoints *bool
)

func init() {
	fetchJson = fetchCmd.Flags().Bool("json", false, "Print the snapshot as json.")
	fetchPoints = fetchCmd.Flags().Bool("points", false, "Also print the derived points.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--json] [--points]",
	Short: "Runs a single update cycle and prints the result.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx, *configPath)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		slog.Info("fetching profile", "username", a.settings.Credentials.Username)
		_, err = a.coordinator.RequestUpdate(ctx, coordinator.ReasonManual)
		if err != nil {
			slog.Debug("update cycle returned an error", "err", err)
		}

		snap, published := a.coordinator.Snapshot()
		var lastErr *coordinator.ErrorState
		if state, ok := a.coordinator.LastError(); ok {
			lastErr = &state
		}

		if *fetchJson {
			err = renderJson(snap, published, lastErr)
			if err != nil {
				serviceutil.Fatal("failed to encode snapshot", err)
			}
		} else {
			if published {
				renderSnapshot(os.Stdout, snap)
				if *fetchPoints {
					renderPoints(os.Stdout, snap)
				}
			}
			renderStatus(os.Stdout, snap, published, lastErr)
		}

		if !published {
			a.Close()
			os.Exit(1)
		}
	},
}
