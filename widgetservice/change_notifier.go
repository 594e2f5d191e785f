package widgetservice

import (
	"context"
	"sync"
)

// ChangeNotifier is a small in-process pub-sub used by the action container
// and the template directory loader to signal that their advertised set has
// changed, so hosts can rebuild instructions or re-send capability lists.
type ChangeNotifier struct {
	mu     sync.RWMutex
	subs   []chan struct{}
	closed bool
}

// Notify signals every subscriber. Delivery is best-effort: a subscriber
// that has not drained its previous signal is skipped rather than blocked
// on. The error return exists for interface symmetry and is always nil.
func (cn *ChangeNotifier) Notify(ctx context.Context) error {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	if cn.closed {
		return nil
	}
	for _, ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscriber returns a channel that receives a signal for each Notify. The
// channel has capacity 1; coalesced signals are indistinguishable, which is
// fine for "something changed, go look" semantics. After Close the returned
// channel is already closed.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch := make(chan struct{}, 1)
	cn.subs = append(cn.subs, ch)
	return ch
}

// Close closes every subscriber channel and drops them. Further Notify
// calls are no-ops and further Subscriber calls return closed channels.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subs
	cn.subs = nil
	cn.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
