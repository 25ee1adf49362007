package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestFormatHttpMessageRedactsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "rotated"})
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	res, err := resty.New().R().
		SetHeader("Cookie", "token=super-secret").
		Get(server.URL)
	require.NoError(t, err)

	message := FormatHttpMessage(res)
	require.NotContains(t, message, "super-secret")
	require.NotContains(t, message, "rotated")
	require.Contains(t, message, "<redacted len=18>")
	require.Contains(t, message, "hello")
	require.Contains(t, message, "200")
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	out, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	out.Write("1", "contents")
	written, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.Equal(t, "contents", string(written))
}
