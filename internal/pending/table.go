// Package pending implements the single request/response correlation table
// spec §4.3 and §9 call for: one map keyed by sequence number, not a
// transport-side table and an engine-side table duplicating each other.
package pending

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/go-dap"
)

// Outcome is what a waiter eventually receives: either a response or the
// connection-failure error passed to FailAll. A waiter dropped through
// Remove (caller timeout or cancellation) receives nothing.
type Outcome struct {
	// Response holds the common response fields (RequestSeq, Success,
	// Command, Message), projected out of whatever concrete response
	// type the adapter sent.
	Response *dap.Response

	// Message holds the full decoded response as go-dap produced it
	// (e.g. *dap.ScopesResponse), so a waiter can reach its command-
	// specific Body. Nil when Err is set.
	Message dap.Message

	Err error
}

// projectResponse extracts the embedded dap.Response out of any concrete
// response type go-dap decodes (every one of them embeds Response
// anonymously as their first field). This lets the table correlate by
// RequestSeq without a type-switch enumerating every response command.
func projectResponse(msg dap.Message) *dap.Response {
	if resp, ok := msg.(*dap.Response); ok {
		return resp
	}
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil
	}
	field := v.Elem().FieldByName("Response")
	if !field.IsValid() || !field.CanAddr() {
		return nil
	}
	resp, ok := field.Addr().Interface().(*dap.Response)
	if !ok {
		return nil
	}
	return resp
}

// Table correlates outgoing request sequence numbers to single-shot
// completion channels. It is safe for concurrent use; the lock is held only
// for map mutation, never across a channel send to a waiter (the send
// happens after the unlock, into a channel buffered by one slot, so it
// cannot block).
type Table struct {
	mu      sync.Mutex
	waiters map[int]chan Outcome
}

// New creates an empty Table.
func New() *Table {
	return &Table{waiters: make(map[int]chan Outcome)}
}

// Register inserts a waiter for seq and returns the channel that will
// receive its Outcome. It panics if seq is already registered — two
// in-flight requests sharing a sequence number is an engine invariant
// violation, not a recoverable runtime condition.
func (t *Table) Register(seq int) <-chan Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.waiters[seq]; exists {
		panic(fmt.Sprintf("pending: sequence number %d already registered", seq))
	}
	ch := make(chan Outcome, 1)
	t.waiters[seq] = ch
	return ch
}

// Complete delivers msg to the waiter registered under seq, if any, and
// removes it. If no waiter is registered the response is dropped; the
// caller is expected to log that condition (pending has no logger of its
// own — it is a pure data structure).
func (t *Table) Complete(seq int, msg dap.Message) (delivered bool) {
	t.mu.Lock()
	ch, ok := t.waiters[seq]
	if ok {
		delete(t.waiters, seq)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- Outcome{Response: projectResponse(msg), Message: msg}
	return true
}

// Remove deletes the waiter for seq without completing it. Used on
// caller-side timeout or cancellation. Idempotent.
func (t *Table) Remove(seq int) {
	t.mu.Lock()
	delete(t.waiters, seq)
	t.mu.Unlock()
}

// FailAll completes every outstanding waiter with err and empties the
// table. Used on shutdown or unrecoverable transport failure.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = make(map[int]chan Outcome)
	t.mu.Unlock()

	for _, ch := range waiters {
		ch <- Outcome{Err: err}
	}
}

// Len reports the number of outstanding waiters (diagnostic use only).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
