package testing

import (
	"reflect"
	"testing"
	"time"

	"eduverse-client-go/internal/platform/config"
	"eduverse-client-go/internal/platform/logging"
)

// SetupTestConfig returns defaults pointed at baseURL with an in-memory
// saga store and logs under the test's temp dir.
func SetupTestConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Log = config.LogConfig{
		Level:   "debug",
		Dir:     t.TempDir(),
		File:    "test.log",
		NoColor: true,
	}
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Ledger.RPCURL = ""
	cfg.Ledger.PollInterval = time.Millisecond
	cfg.Mint.Store.Type = "memory"
	return cfg
}

func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "debug",
		Dir:      t.TempDir(),
		Filename: "test.log",
		NoColor:  true,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual any) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// Eventually polls cond every 5ms until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
