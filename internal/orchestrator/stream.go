package orchestrator

import (
	"strings"
	"time"
)

const (
	// flushInterval bounds how long buffered text may sit unsent.
	flushInterval = 500 * time.Millisecond
	// flushWords flushes early once enough words accumulate.
	flushWords = 15
	// withdrawGrace holds the very first flush back so a response that turns
	// out to be a tool call can be withdrawn before anything reaches the user.
	withdrawGrace = 250 * time.Millisecond
)

// Emitter throttles streamed text deltas into larger chunks. It is not safe
// for concurrent use; one emitter serves one in-flight command.
type Emitter struct {
	send       func(chunk string) error
	buf        strings.Builder
	words      int
	firstWrite time.Time
	lastFlush  time.Time
	flushed    bool
	now        func() time.Time
}

// NewEmitter creates an emitter around a chunk sink.
func NewEmitter(send func(chunk string) error) *Emitter {
	return &Emitter{send: send, now: time.Now}
}

// Write buffers one delta and flushes when the word or interval threshold is
// crossed. The first flush additionally waits out the withdraw grace period.
func (e *Emitter) Write(delta string) error {
	if delta == "" {
		return nil
	}
	if e.buf.Len() == 0 && !e.flushed {
		e.firstWrite = e.now()
	}
	e.buf.WriteString(delta)
	e.words += len(strings.Fields(delta))

	now := e.now()
	if !e.flushed && now.Sub(e.firstWrite) < withdrawGrace {
		return nil
	}
	if e.words < flushWords && !e.lastFlush.IsZero() && now.Sub(e.lastFlush) < flushInterval {
		return nil
	}
	return e.flush()
}

// Finish flushes whatever remains in the buffer.
func (e *Emitter) Finish() error {
	if e.buf.Len() == 0 {
		return nil
	}
	return e.flush()
}

// Withdraw discards buffered text. It reports whether withdrawal fully
// succeeded, i.e. nothing had been sent yet.
func (e *Emitter) Withdraw() bool {
	e.buf.Reset()
	e.words = 0
	return !e.flushed
}

func (e *Emitter) flush() error {
	chunk := e.buf.String()
	e.buf.Reset()
	e.words = 0
	e.flushed = true
	e.lastFlush = e.now()
	return e.send(chunk)
}
