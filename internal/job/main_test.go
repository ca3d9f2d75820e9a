package job

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures no coordinator or worker goroutines outlive their job.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
