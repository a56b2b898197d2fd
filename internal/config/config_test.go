package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Defaults(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("SERVER_ADDRESS", "")
	opts, err := ParseArgs([]string{"-c", filepath.Join(t.TempDir(), "absent.json")})
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", opts.Port)
	assert.Equal(t, 5*time.Minute, opts.LockDuration)
	assert.Equal(t, "https://api.github.com", opts.GitHubAPI)
	assert.Empty(t, opts.DatabaseDSN)
}

func TestParseArgs_FileFormats(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "config.json", `{"port":":9000","lock_duration":"90s","nats_url":"nats://n:4222"}`},
		{"yaml", "config.yaml", "port: \":9000\"\nlock_duration: 90s\nnats_url: nats://n:4222\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CONFIG", "")
			t.Setenv("SERVER_ADDRESS", "")
			t.Setenv("NATS_URL", "")
			path := filepath.Join(t.TempDir(), tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			opts, err := ParseArgs([]string{"-config", path})
			require.NoError(t, err)
			assert.Equal(t, ":9000", opts.Port)
			assert.Equal(t, 90*time.Second, opts.LockDuration)
			assert.Equal(t, "nats://n:4222", opts.NATSURL)
		})
	}
}

func TestParseArgs_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":":9000","id":"x","lock_duration":"1m"}`), 0o600))

	t.Setenv("CONFIG", path)
	t.Setenv("SERVER_ADDRESS", ":7000")

	opts, err := ParseArgs([]string{"-lock", "2m"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", opts.Port, "env beats file")
	assert.Equal(t, 2*time.Minute, opts.LockDuration, "flag beats file")
}

func TestParseArgs_Errors(t *testing.T) {
	t.Setenv("CONFIG", "")
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	_, err := ParseArgs([]string{"-c", bad})
	assert.ErrorContains(t, err, "error while parsing config file")

	badDur := filepath.Join(dir, "dur.yaml")
	require.NoError(t, os.WriteFile(badDur, []byte("lock_duration: soon\n"), 0o600))
	_, err = ParseArgs([]string{"-c", badDur})
	assert.ErrorContains(t, err, "lock")

	_, err = ParseArgs([]string{"-c", filepath.Join(dir, "none.json"), "-lock", "0s"})
	assert.ErrorContains(t, err, "lock duration must be positive")

	_, err = ParseArgs([]string{"-unknown"})
	assert.Error(t, err)
}
