package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairwatch/internal/version"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"run", "show", "export", "prune", "simulate-alert", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})

	require.NoError(t, root.Execute())
	require.Equal(t, version.String()+"\n", out.String())
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseWhen("", now)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = parseWhen("2026-05-01T08:30:00Z", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC), *got)

	got, err = parseWhen("2026-05-01", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseWhen("7d", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-7*24*time.Hour), *got)

	got, err = parseWhen("90m", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-90*time.Minute), *got)

	_, err = parseWhen("yesterday", now)
	require.Error(t, err)
}
