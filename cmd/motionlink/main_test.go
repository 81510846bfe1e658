package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motionlink/internal/config"
	"github.com/banshee-data/motionlink/internal/controller"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, config.DefaultPort, *port)
	assert.Equal(t, config.DefaultListen, *listen)
	assert.Equal(t, config.DefaultTickInterval, *tick)
	assert.False(t, *record)
	assert.False(t, *devMode)
}

func TestApplyFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	fileTick := "50ms"
	filePort := "/dev/ttyACM0"
	cfg := &config.Config{Port: &filePort, TickInterval: &fileTick}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(port, "port", config.DefaultPort, "")
	fs.BoolVar(record, "record", false, "")
	fs.DurationVar(tick, "tick", config.DefaultTickInterval, "")
	t.Cleanup(func() {
		*port = config.DefaultPort
		*record = false
		*tick = config.DefaultTickInterval
	})

	require.NoError(t, fs.Parse([]string{"-record", "-tick", "5ms"}))
	applyFlags(fs, cfg)

	assert.Equal(t, "/dev/ttyACM0", cfg.GetPort(), "unset flag must not override the file")
	assert.True(t, cfg.GetRecord())
	assert.Equal(t, 5*time.Millisecond, cfg.GetTickInterval())
}

func TestReadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.txt")
	require.NoError(t, os.WriteFile(path, []byte("L,1,0,1,2,3\n\n  L,0,1,4,5,6  \n"), 0o644))

	lines, err := readFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"L,1,0,1,2,3", "L,0,1,4,5,6"}, lines)
}

func TestReadFixtures_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))

	_, err := readFixtures(path)
	assert.Error(t, err)
}

func TestRepositoryFixturesParse(t *testing.T) {
	lines, err := readFixtures("../../fixtures.txt")
	require.NoError(t, err)
	for _, line := range lines {
		_, err := controller.ParseFrame(line)
		assert.NoError(t, err, "fixture %q", line)
	}
}

func TestFixtureIntervalWithinReadTimeout(t *testing.T) {
	assert.Less(t, fixtureInterval, controller.ReadTimeout)
}
