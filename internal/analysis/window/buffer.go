// Package window batches incoming telemetry samples into fixed-size
// windows for classification.
package window

import (
	"fmt"

	"github.com/jengzang/drivesense-backend/internal/models"
)

// Policy decides what happens to buffered samples when a new payload
// arrives.
type Policy string

const (
	// PolicyReplace discards whatever was buffered and treats each
	// payload on its own. A payload shorter than the window length is
	// never classified, and samples left over after draining full
	// windows are dropped by the next push.
	PolicyReplace Policy = "replace"

	// PolicyAccumulate appends every payload to the queue, so short
	// payloads are combined across messages until a full window exists.
	PolicyAccumulate Policy = "accumulate"
)

// ParsePolicy validates a configured policy name
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyReplace, PolicyAccumulate:
		return Policy(s), nil
	case "":
		return PolicyReplace, nil
	}
	return "", fmt.Errorf("unknown window policy %q (want %q or %q)", s, PolicyReplace, PolicyAccumulate)
}

// Window is an ordered batch of exactly the classifier's expected length
type Window []models.TelemetrySample

// Buffer is an append-only ordered queue of samples. It is owned by a
// single connection and is not safe for concurrent use.
type Buffer struct {
	policy Policy
	length int
	queue  []models.TelemetrySample
}

// NewBuffer creates a buffer draining windows of length samples
func NewBuffer(policy Policy, length int) *Buffer {
	if length < 1 {
		length = 1
	}
	return &Buffer{policy: policy, length: length}
}

// Push adds a message payload to the buffer according to the policy
func (b *Buffer) Push(samples ...models.TelemetrySample) {
	if b.policy == PolicyReplace {
		b.queue = b.queue[:0]
	}
	b.queue = append(b.queue, samples...)
}

// DrainIfReady removes and returns exactly one window when enough
// samples are queued. Otherwise it returns false and leaves the queue
// untouched.
func (b *Buffer) DrainIfReady() (Window, bool) {
	if len(b.queue) < b.length {
		return nil, false
	}

	w := make(Window, b.length)
	copy(w, b.queue[:b.length])

	rest := copy(b.queue, b.queue[b.length:])
	b.queue = b.queue[:rest]
	return w, true
}

// Len returns the number of buffered samples
func (b *Buffer) Len() int {
	return len(b.queue)
}

// Reset drops all buffered samples
func (b *Buffer) Reset() {
	b.queue = b.queue[:0]
}

// WindowLength returns the number of samples per window
func (b *Buffer) WindowLength() int {
	return b.length
}
