// Package testing is imported for its side effect by tests that build the
// full service: it switches the process into test mode before any package
// init reads the environment.
package testing

import (
	"os"
	stdtesting "testing"
)

var defaults = map[string]string{
	"CRMAUTH_TEST_MODE": "1",
	"JWT_SECRET":        "test-signing-key",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain can be assigned from a package's own TestMain to run with the defaults applied.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
