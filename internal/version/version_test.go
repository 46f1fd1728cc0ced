package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func stamp(t *testing.T, version, commit, date string, bi *debug.BuildInfo) {
	t.Helper()

	v, c, d, read := Version, Commit, Date, readBuildInfo
	t.Cleanup(func() {
		Version, Commit, Date, readBuildInfo = v, c, d, read
	})
	Version, Commit, Date = version, commit, date
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func TestLinkerStampsWin(t *testing.T) {
	stamp(t, "1.2.3", "abc123", "2026-02-18", &debug.BuildInfo{
		Main:     debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffffffff"}},
	})

	got := String()
	require.Contains(t, got, "fala 1.2.3")
	require.Contains(t, got, "commit=abc123")
	require.Contains(t, got, "date=2026-02-18")
	require.Contains(t, got, "go=")
}

func TestBuildInfoFillsUnstampedFields(t *testing.T) {
	stamp(t, "dev", "", "", &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	info := Current()
	require.Equal(t, "v0.4.0", info.Version)
	require.Equal(t, "0123456789ab", info.Commit)
	require.True(t, info.Modified)
	require.Contains(t, info.String(), "commit=0123456789ab-dirty")
	require.Equal(t, "fala/v0.4.0", UserAgent())
}

func TestDevelBuildKeepsDefaults(t *testing.T) {
	stamp(t, "dev", "", "", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

	info := Current()
	require.Equal(t, "dev", info.Version)
	require.Equal(t, "none", info.Commit)
	require.Equal(t, "unknown", info.Date)
}

func TestMissingBuildInfo(t *testing.T) {
	stamp(t, "dev", "", "", nil)
	require.Equal(t, "fala/dev", UserAgent())
}
