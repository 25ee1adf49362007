package commands

import (
	"makerworld-stats/internal/account"
	"makerworld-stats/internal/history"
	"makerworld-stats/lib/serviceutil"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().IntP("limit", "n", 24, "The number of snapshots to show.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <limit>]",
	Short: "Lists the most recently recorded snapshots.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := account.Load(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if config.HistoryPath == "" {
			serviceutil.Fatal("history is disabled", account.ErrNoHistoryPath)
		}
		settings, err := config.Settings()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		store, err := history.Open(ctx, config.HistoryPath)
		if err != nil {
			serviceutil.Fatal("failed to open history", err)
		}
		defer store.Close()

		entries, err := store.Recent(ctx, settings.Credentials.Username, *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read history", err)
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"#", "Fetched", "Likes", "Downloads", "Prints", "Points", "Followers", "Models"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.Sequence,
				e.FetchedAt.Local().Format(time.DateTime),
				e.Stats.Likes,
				e.Stats.Downloads,
				e.Stats.Prints,
				e.Stats.Points,
				e.Stats.Followers,
				e.Models,
			})
		}
		t.Render()
	},
}
