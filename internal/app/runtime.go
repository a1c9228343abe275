package app

import (
	"os"
	"sync"
)

// The worker binary checks this flag so integration harnesses can load the
// package without it connecting to Redis or Postgres.
const testModeEnv = "PARTNERDESK_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether startup side effects should be skipped.
func InTestMode() bool {
	return inTestMode()
}
