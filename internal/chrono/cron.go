package chrono

import (
	"fmt"
	"makerworld-stats/internal/telemetry"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CronAPI is the interface that anything depending on things happening on a fixed interval should use.
//
// note: fault injection point
type CronAPI interface {
	// Every runs callback once per interval until the returned stop function is called.
	Every(interval time.Duration, callback func()) (stop func(), err error)
}

// StandardCron is the standard implementation of CronAPI using `github.com/robfig/cron/v3`
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron is the constructor of StandardCron, the underlying scheduler is started immediately.
func NewStandardCron(tel telemetry.API) StandardCron {
	cronner := cron.New(
		cron.WithLogger(cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}),
		cron.WithLocation(time.UTC),
	)
	cronner.Start()

	return StandardCron{
		cron: cronner,
	}
}

func (s StandardCron) Every(interval time.Duration, callback func()) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cron: interval must be positive, got %s", interval)
	}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(callback))
	return func() {
		s.cron.Remove(id)
	}, nil
}

// Stop stops the scheduler, it does not wait for running jobs.
func (s StandardCron) Stop() {
	s.cron.Stop()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i < len(keysAndValues)/2; i++ {
		idx := i * 2
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[idx], keysAndValues[idx+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	params := append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)
	l.tel.ReportBroken("job", params...)
}

// ManualCron is a CronAPI that only fires when Tick is called.
type ManualCron struct {
	mu     sync.Mutex
	nextId int
	jobs   map[int]manualJob
}

type manualJob struct {
	interval time.Duration
	callback func()
}

func NewManualCron() *ManualCron {
	return &ManualCron{jobs: map[int]manualJob{}}
}

func (m *ManualCron) Every(interval time.Duration, callback func()) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cron: interval must be positive, got %s", interval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextId
	m.nextId++
	m.jobs[id] = manualJob{interval: interval, callback: callback}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.jobs, id)
	}, nil
}

// Tick synchronously runs every registered job once.
func (m *ManualCron) Tick() {
	m.mu.Lock()
	callbacks := make([]func(), 0, len(m.jobs))
	for i := 0; i < m.nextId; i++ {
		job, ok := m.jobs[i]
		if ok {
			callbacks = append(callbacks, job.callback)
		}
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// Jobs returns the number of registered jobs.
func (m *ManualCron) Jobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Registrations returns how many times Every has been called.
func (m *ManualCron) Registrations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextId
}
