package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string            `json:"name"`
	Interval int               `json:"interval"`
	Nested   testNested        `json:"nested"`
	Labels   map[string]string `json:"labels"`
}

type testNested struct {
	Cookie string `json:"cookie"`
	Max    int    `json:"max"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "config.local.json5", LocalPath("config.json5"))
	require.Equal(t, "/etc/a/telemetry.local.json5", LocalPath("/etc/a/telemetry.json5"))
	require.Equal(t, "noext.local", LocalPath("noext"))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](path)
	require.ErrorIs(t, err, os.ErrNotExist)

	writeFile(t, path, `{
		// comments are allowed
		name: "base",
		interval: 60,
		nested: { cookie: "a=1", max: 5 },
	}`)
	config, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "base", config.Name)
	require.Equal(t, 60, config.Interval)
	require.Equal(t, 5, config.Nested.Max)

	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		nested: { cookie: "b=2" },
		labels: { env: "dev" },
	}`)
	config, err = ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "base", config.Name)
	require.Equal(t, 60, config.Interval)
	require.Equal(t, "b=2", config.Nested.Cookie)
	require.Equal(t, 5, config.Nested.Max)
	require.Equal(t, "dev", config.Labels["env"])
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ name: "local" }`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "local", config.Name)
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{ name: `)

	_, err := ReadConfig[testConfig](path)
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0700))
	writeFile(t, filepath.Join(root, "walk-test.json5"), `{ name: "found" }`)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	config, err := ReadRecursively[testConfig]("walk-test.json5")
	require.NoError(t, err)
	require.Equal(t, "found", config.Name)

	_, err = ReadRecursively[testConfig]("walk-test-missing.json5")
	require.ErrorIs(t, err, os.ErrNotExist)
}
