package version

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, buildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime
	})
}

func TestStampedBuild(t *testing.T) {
	withBuildVars(t, "v1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z")

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.True(t, info.Release)

	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())
}

func TestParseBuildTime(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"", time.Time{}},
		{"unknown", time.Time{}},
		{"yesterday", time.Time{}},
		{"2026-10-15T12:00:00Z", time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(parseBuildTime(tt.input)))
		})
	}
}

func TestUnstampedBuild(t *testing.T) {
	withBuildVars(t, "dev", "unknown", "unknown")

	version := GetVersion()
	assert.NotEmpty(t, version)
	info := GetBuildInfo()
	assert.True(t, info.BuildTime.IsZero())
	assert.Equal(t, IsRelease(), info.Release)
}
