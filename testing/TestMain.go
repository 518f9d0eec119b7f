// Package testing puts the process in test mode when blank-imported from a
// _test.go file, so entrypoints skip runtime startup and no developer .env
// leaks into tests.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("SHIFTLEDGER_TEST_MODE", "1")
		if os.Getenv("ENV_FILE") == "" {
			_ = os.Setenv("ENV_FILE", os.DevNull)
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
