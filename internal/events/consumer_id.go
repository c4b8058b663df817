package events

import (
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
)

// NewConsumerID returns a consumer name unique to this process. Restarted
// processes get a new name; their predecessor's pending entries are
// reclaimed through XAUTOCLAIM.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), ulid.Make().String())
}
