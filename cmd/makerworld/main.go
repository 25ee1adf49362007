package main

import (
	"context"
	"log/slog"
	"makerworld-stats/cmd/makerworld/commands"
	"makerworld-stats/internal/telemetry"
)

func main() {
	ctx := context.Background()
	otel, err := telemetry.SetupFromEnv(ctx, "makerworld")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	defer otel.Shutdown(ctx)

	commands.ExecuteContext(ctx)
}
