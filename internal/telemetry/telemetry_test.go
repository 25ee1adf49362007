package telemetry

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	mem := &MemoryAPI{}
	scoped := NewScopedAPI("client", NewScopedAPI("makerworld", mem))

	scoped.ReportBroken("fetch-profile", errors.New("boom"))
	scoped.ReportWarning("fetch-upload")
	scoped.ReportDebug("request", KV{Key: "url", Value: "/en/@maker"})
	scoped.ReportCount("requests", 3)

	broken := mem.Reports(LevelBroken)
	require.Len(t, broken, 1)
	require.Equal(t, "makerworld: client: fetch-profile", broken[0].Id)
	require.EqualError(t, broken[0].Params[0].(error), "boom")

	require.True(t, mem.Has(LevelWarning, "client: fetch-upload"))
	require.True(t, mem.Has(LevelDebug, "makerworld: client: request"))
	require.False(t, mem.Has(LevelBroken, "fetch-upload"))

	counts := mem.Reports(LevelCount)
	require.Len(t, counts, 1)
	require.Equal(t, int64(3), counts[0].Count)
}

func TestSlogAPI(t *testing.T) {
	buf := &bytes.Buffer{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(previous)

	api := SlogAPI{}
	api.ReportBroken("coordinator.panic", errors.New("boom"), KV{Key: "reason", Value: "MANUAL"})
	api.ReportDebug("cycle done", KV{Key: "sequence", Value: 2})
	api.ReportCount("cycles", 4)

	out := buf.String()
	require.Contains(t, out, "level=ERROR")
	require.Contains(t, out, "id=coordinator.panic")
	require.Contains(t, out, "params.0=boom")
	require.Contains(t, out, "reason=MANUAL")
	require.Contains(t, out, "sequence=2")
	require.Contains(t, out, "n=4")
}

func TestRestyLogger(t *testing.T) {
	mem := &MemoryAPI{}
	logger := restyLogger{tel: NewScopedAPI("makerworld", mem)}

	logger.Errorf("ERROR RESTY %s", "connection reset")
	logger.Warnf("retrying %d", 2)

	debug := mem.Reports(LevelDebug)
	require.Len(t, debug, 2)
	require.Equal(t, "makerworld: resty.log", debug[0].Id)
	require.Equal(t, []any{"error", "ERROR RESTY connection reset"}, debug[0].Params)
	require.Equal(t, []any{"warn", "retrying 2"}, debug[1].Params)
	require.Empty(t, mem.Reports(LevelBroken))
}

func TestInstrumentRestyCapturesClientLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	mem := &MemoryAPI{}
	client := resty.New().
		SetRetryCount(1).
		SetRetryWaitTime(time.Millisecond).
		SetRetryMaxWaitTime(time.Millisecond)
	InstrumentResty(client, mem, nil)

	_, err := client.R().Get(url)
	require.Error(t, err)
	require.True(t, mem.Has(LevelDebug, "resty.log"))
	require.True(t, mem.Has(LevelWarning, "resty.response"))
}
