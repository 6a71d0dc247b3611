package app

import (
	"os"
	"sync"
)

const testModeEnv = "CRMAUTH_TEST_MODE"

// InTestMode reports whether the binaries should skip startup and the router
// should stay quiet. The flag is read once per process.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})
