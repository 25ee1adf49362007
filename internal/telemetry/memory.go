package telemetry

import (
	"fmt"
	"strings"
	"sync"
)

type ReportLevel int

const (
	LevelBroken ReportLevel = iota
	LevelWarning
	LevelDebug
	LevelCount
)

type Report struct {
	Level  ReportLevel
	Id     string
	Params []any
	Count  int64
}

// MemoryAPI records every report it receives, it exists so tests can assert on telemetry.
type MemoryAPI struct {
	mu      sync.Mutex
	reports []Report
}

func (m *MemoryAPI) record(r Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.record(Report{Level: LevelBroken, Id: id, Params: params})
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.record(Report{Level: LevelWarning, Id: id, Params: params})
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.record(Report{Level: LevelDebug, Id: msg, Params: params})
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.record(Report{Level: LevelCount, Id: id, Count: count})
}

// Reports returns a copy of every report at the given level.
func (m *MemoryAPI) Reports(level ReportLevel) []Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Report
	for _, r := range m.reports {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// Has returns true if a report at the given level has an id containing the substring.
func (m *MemoryAPI) Has(level ReportLevel, idSubstr string) bool {
	for _, r := range m.Reports(level) {
		if strings.Contains(r.Id, idSubstr) {
			return true
		}
	}
	return false
}

func (r Report) String() string {
	return fmt.Sprintf("%s %v", r.Id, r.Params)
}
