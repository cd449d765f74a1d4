package runtime

import (
	"errors"
	"time"
)

// ErrGone means the container no longer exists on the daemon. Stop and
// remove paths treat it as success; status reconciliation treats it as
// drift.
var ErrGone = errors.New("container no longer exists")

func parseDockerTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
