package bus

import (
    "context"
    "errors"
    "sync"
)

// ErrSessionClosed resolves every request still pending when its session
// goes away.
var ErrSessionClosed = errors.New("bus: session closed")

// pendingTable correlates in-flight requests with their replies by envelope
// id. One table per client; safe for concurrent use.
type pendingTable struct {
    table sync.Map // [16]byte -> *pendingRequest
}

type pendingRequest struct {
    parent *pendingTable
    id     [16]byte
    ch     chan *Envelope
    once   sync.Once
}

// Put registers a request awaiting a reply.
func (t *pendingTable) Put(id [16]byte) *pendingRequest {
    p := &pendingRequest{parent: t, id: id, ch: make(chan *Envelope, 1)}
    t.table.Store(id, p)
    return p
}

// Resolve hands a reply envelope to its waiter, if one is still around.
func (t *pendingTable) Resolve(e *Envelope) {
    v, ok := t.table.LoadAndDelete(e.ID)
    if !ok { return }
    p := v.(*pendingRequest)
    p.once.Do(func() {
        p.ch <- e
        close(p.ch)
    })
}

// FailAll resolves every pending request with a nil envelope (session gone).
func (t *pendingTable) FailAll() {
    t.table.Range(func(key, value any) bool {
        t.table.Delete(key)
        p := value.(*pendingRequest)
        p.once.Do(func() { close(p.ch) })
        return true
    })
}

// Close abandons the request; a reply that arrives later is dropped.
func (p *pendingRequest) Close() {
    v, ok := p.parent.table.LoadAndDelete(p.id)
    if !ok { return }
    pr := v.(*pendingRequest)
    pr.once.Do(func() { close(pr.ch) })
}

// Wait blocks until the reply, session teardown, or ctx expiry. Abandoning
// the wait does not cancel the remote side; its effects still complete.
func (p *pendingRequest) Wait(ctx context.Context) (*Envelope, error) {
    defer p.Close()
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case reply, ok := <-p.ch:
        if !ok || reply == nil {
            return nil, ErrSessionClosed
        }
        return reply, nil
    }
}
