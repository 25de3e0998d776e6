package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/stdattr/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Log output is
// captured and printed when STDATTR_TEST_LOGS is "true".
func SetupAppTest(t *testing.T, cfg Config) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	valid, err := NewConfig(cfg)
	require.NoError(t, err)
	testApp, err := New(logBuffer, valid)
	require.NoError(t, err)

	t.Cleanup(func() {
		testApp.Close()
		if os.Getenv("STDATTR_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
