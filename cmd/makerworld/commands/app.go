package commands

import (
	"context"
	"fmt"
	"makerworld-stats/internal/account"
	"makerworld-stats/internal/chrono"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/history"
	"makerworld-stats/internal/makerworld"
	"makerworld-stats/internal/telemetry"
	"time"
)

// app is everything a command needs to run update cycles for the
// configured account.
type app struct {
	config      account.Config
	settings    account.Settings
	coordinator *coordinator.Coordinator
	history     *history.Store
	cron        chrono.StandardCron
}

func coordinatorOptions(config account.Config) coordinator.Options {
	return coordinator.Options{
		Interval:                config.Interval(),
		CycleTimeout:            config.CycleTimeout(),
		ResetScheduleOnManual:   config.ResetScheduleOnManual,
		AuthEscalationThreshold: config.AuthEscalationThreshold,
		RateLimitBackoff:        time.Duration(config.RateLimitBackoffSeconds) * time.Second,
		MaxRateLimitBackoff:     time.Duration(config.MaxRateLimitBackoffSeconds) * time.Second,
	}
}

func newApp(ctx context.Context, path string) (*app, error) {
	config, err := account.Load(path)
	if err != nil {
		return nil, err
	}
	settings, err := config.Settings()
	if err != nil {
		return nil, err
	}

	tel := telemetry.SlogAPI{}
	timeAPI := chrono.NewStandardTime()

	client, err := makerworld.NewClient(config.ClientOptions(), timeAPI, tel)
	if err != nil {
		return nil, fmt.Errorf("create makerworld client: %w", err)
	}

	cron := chrono.NewStandardCron(tel)
	coord := coordinator.New(
		client,
		account.FileSource{Path: path},
		timeAPI,
		cron,
		tel,
		coordinatorOptions(config),
	)

	a := &app{
		config:      config,
		settings:    settings,
		coordinator: coord,
		cron:        cron,
	}

	if config.HistoryPath != "" {
		store, err := history.Open(ctx, config.HistoryPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = store
		coord.Subscribe(store.Subscriber(ctx, settings.Credentials.Username, tel))
	}

	return a, nil
}

func (a *app) Close() {
	a.coordinator.Close()
	a.cron.Stop()
	if a.history != nil {
		a.history.Close()
	}
}
