package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

var errApprovalTimeout = fmt.Errorf("agent: approval request timed out")

// approvalWaiter holds the pending AskUser prompts a turn is blocked on,
// keyed by tool-call id, so resolve_approval (called from a different
// goroutine than the one running the turn) can hand a decision back in.
type approvalWaiter struct {
	mu      sync.Mutex
	pending map[string]chan models.UserResponse
}

func newApprovalWaiter() *approvalWaiter {
	return &approvalWaiter{pending: make(map[string]chan models.UserResponse)}
}

// register opens a slot for id and returns the channel the turn should
// block on. Panics if id is already registered, which would indicate two
// concurrent awaits on the same tool-call id.
func (w *approvalWaiter) register(id string) <-chan models.UserResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.pending[id]; exists {
		panic(fmt.Sprintf("agent: duplicate approval wait for %s", id))
	}
	ch := make(chan models.UserResponse, 1)
	w.pending[id] = ch
	return ch
}

func (w *approvalWaiter) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}

// Resolve delivers a user's decision for a pending approval request. It
// returns false if id has no outstanding prompt (already resolved,
// timed out, or never requested).
func (w *approvalWaiter) Resolve(id string, resp models.UserResponse) bool {
	w.mu.Lock()
	ch, ok := w.pending[id]
	w.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}

// await blocks until id's decision arrives, ctx is cancelled, or timeout
// elapses (a zero timeout channel, i.e. one that never fires, makes this
// an unbounded wait as §4.F allows for the approval suspension point).
func (w *approvalWaiter) await(ctx context.Context, id string, timeoutC <-chan time.Time) (models.UserResponse, error) {
	ch := w.register(id)
	defer w.forget(id)
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timeoutC:
		return "", errApprovalTimeout
	}
}
