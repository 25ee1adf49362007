package commands

import (
	"log/slog"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/telemetry"
	"makerworld-stats/internal/trigger"
	"makerworld-stats/lib/serviceutil"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Updates the profile on an interval until interrupted, SIGUSR1 requests an update immediately.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()

		a, err := newApp(ctx, *configPath)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		a.coordinator.Subscribe(func(update coordinator.Update) {
			if update.Published {
				renderSnapshot(os.Stdout, update.Snapshot)
			}
			renderStatus(os.Stdout, update.Snapshot, !update.Snapshot.IsZero(), update.Error)
		})

		button := trigger.NewButton(a.coordinator)
		serviceutil.OnSignal(ctx, func() {
			feedback := button.Press(ctx)
			if feedback.OK {
				slog.Info("manual update", "message", feedback.Message)
				return
			}
			slog.Warn("manual update", "message", feedback.Message)
		}, syscall.SIGUSR1)

		telemetry.InstrumentPerfStats(ctx)

		slog.Info(
			"watching profile",
			"username", a.settings.Credentials.Username,
			"interval", a.config.Interval(),
			"pid", os.Getpid(),
		)
		err = a.coordinator.Start(ctx)
		if err != nil {
			serviceutil.Fatal("failed to schedule updates", err)
		}

		<-ctx.Done()
		slog.Info("shutting down")
	},
}
