package common

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// cloneSeq provides the monotonic component embedded in clone IDs
var cloneSeq uint64

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewCloneID generates a unique clone directory ID embedding the owning job ID
// and a monotonic component, so concurrent clones for retried jobs never collide.
func NewCloneID(jobID string) string {
	seq := atomic.AddUint64(&cloneSeq, 1)
	return fmt.Sprintf("%s-%d-%d", jobID, time.Now().UnixMilli(), seq)
}
