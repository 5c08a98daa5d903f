package bus

import (
    "context"
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/codec"
    "github.com/redhat-openstack/ironic/pkg/rpc"
    "github.com/redhat-openstack/ironic/pkg/version"
)

// ClientOptions tunes the caller side of the bus.
type ClientOptions struct {
    // Hostname identifies this process in the hello exchange.
    Hostname string
    // ContentType selects the payload codec (default application/cbor).
    ContentType string
    // CallTimeout bounds blocking calls when the caller's ctx has no
    // deadline of its own (default 60s).
    CallTimeout time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
    if o.ContentType == "" { o.ContentType = "application/cbor" }
    if o.CallTimeout <= 0 { o.CallTimeout = 60 * time.Second }
    return o
}

// Client is the caller side of the message bus. It maintains one canonical
// session per conductor host and implements the dispatcher's transport
// primitive: Prepare/CanSendVersion, with per-request correlation for calls.
type Client struct {
    opts   ClientOptions
    codecs *codec.Registry
    mgr    *Manager

    mu    sync.RWMutex
    peers map[string]*peerState // hostname -> connected conductor
}

type peerState struct {
    sess    Session
    st      Stream
    max     version.Version
    topics  map[string]struct{}
    pending pendingTable

    wmu sync.Mutex // one writer at a time on st
}

func NewClient(opts ClientOptions) *Client {
    return &Client{
        opts:   opts.withDefaults(),
        codecs: codec.NewRegistry(),
        mgr:    NewManager(),
        peers:  make(map[string]*peerState),
    }
}

// Connect dials a conductor, runs the hello exchange and starts the reply
// reader. ctx governs the session lifetime: when it ends the session closes.
func (c *Client) Connect(ctx context.Context, tr Transport, addr string) error {
    sess, err := tr.Dial(ctx, addr)
    if err != nil {
        return &rpc.TransportError{Op: "dial", Err: err}
    }
    go func() { <-ctx.Done(); _ = sess.Close() }()
    st, err := sess.OpenStream(ctx)
    if err != nil {
        _ = sess.Close()
        return &rpc.TransportError{Op: "open stream", Err: err}
    }

    hello := Hello{Hostname: c.opts.Hostname, MaxVersion: rpc.APIVersion.String()}
    if err := c.sendEnvelope(st, nil, &Envelope{Kind: MsgHello, ContentType: c.opts.ContentType}, &hello); err != nil {
        _ = sess.Close()
        return err
    }
    ack, err := c.readHelloAck(st)
    if err != nil {
        _ = sess.Close()
        return err
    }
    maxV, err := version.Parse(ack.MaxVersion)
    if err != nil {
        _ = sess.Close()
        return &rpc.TransportError{Op: "hello", Err: fmt.Errorf("peer advertised bad version %q", ack.MaxVersion)}
    }

    sess.SetPeer(PeerInfo{Hostname: ack.Hostname, Addr: addr})
    if c.mgr.Add(sess) != sess {
        // an existing session to this host outranked us; nothing to do
        return nil
    }
    p := &peerState{sess: sess, st: st, max: maxV, topics: make(map[string]struct{}, len(ack.Topics))}
    for _, t := range ack.Topics { p.topics[t] = struct{}{} }
    c.mu.Lock(); c.peers[ack.Hostname] = p; c.mu.Unlock()
    zap.L().Info("conductor connected",
        zap.String("hostname", ack.Hostname),
        zap.String("transport", sess.TransportKind().String()),
        zap.String("max_version", ack.MaxVersion),
        zap.Strings("topics", ack.Topics))

    go c.readLoop(ack.Hostname, p)
    return nil
}

func (c *Client) readHelloAck(st Stream) (*Hello, error) {
    b, err := st.RecvBytes()
    if err != nil {
        return nil, &rpc.TransportError{Op: "hello", Err: err}
    }
    var env Envelope
    if err := env.DecodeFrame(b); err != nil {
        return nil, &rpc.TransportError{Op: "hello", Err: err}
    }
    if env.Kind != MsgHelloAck {
        return nil, &rpc.TransportError{Op: "hello", Err: fmt.Errorf("unexpected frame kind %d", env.Kind)}
    }
    var ack Hello
    if err := decodeBody(c.codecs, env.ContentType, env.Body, &ack); err != nil {
        return nil, &rpc.TransportError{Op: "hello", Err: err}
    }
    return &ack, nil
}

func (c *Client) readLoop(hostname string, p *peerState) {
    for {
        b, err := p.st.RecvBytes()
        if err != nil {
            zap.L().Warn("conductor session lost", zap.String("hostname", hostname), zap.Error(err))
            break
        }
        var env Envelope
        if err := env.DecodeFrame(b); err != nil {
            zap.L().Warn("undecodable frame", zap.String("hostname", hostname), zap.Error(err))
            continue
        }
        switch env.Kind {
        case MsgReply, MsgError:
            p.pending.Resolve(&env)
        default:
            zap.L().Warn("unexpected frame kind", zap.String("hostname", hostname), zap.Uint8("kind", uint8(env.Kind)))
        }
    }
    p.pending.FailAll()
    c.mgr.Drop(p.sess)
    c.mu.Lock()
    if cur := c.peers[hostname]; cur == p { delete(c.peers, hostname) }
    c.mu.Unlock()
}

// Close tears down every session.
func (c *Client) Close() {
    c.mgr.Close()
    c.mu.Lock()
    for h, p := range c.peers {
        p.pending.FailAll()
        delete(c.peers, h)
    }
    c.mu.Unlock()
}

// CanSendVersion reports whether every currently connected conductor accepts
// messages pinned at v: during a rolling upgrade the fleet's floor governs.
// With no sessions yet, the local ceiling is the only constraint.
func (c *Client) CanSendVersion(v version.Version) bool {
    c.mu.RLock(); defer c.mu.RUnlock()
    if len(c.peers) == 0 {
        return version.CanSend(v, rpc.APIVersion)
    }
    for _, p := range c.peers {
        if !version.CanSend(v, p.max) { return false }
    }
    return true
}

// Prepare pins a bound client to one topic and one wire version.
func (c *Client) Prepare(topic rpc.Topic, v version.Version) rpc.Bound {
    return &bound{c: c, topic: topic, version: v}
}

// peerForTopic finds a connected conductor consuming topic. Hosts are
// scanned in sorted order so the choice is deterministic.
func (c *Client) peerForTopic(topic rpc.Topic) (*peerState, error) {
    c.mu.RLock(); defer c.mu.RUnlock()
    for _, h := range c.mgr.Hosts() {
        p, ok := c.peers[h]
        if !ok { continue }
        if _, ok := p.topics[string(topic)]; ok { return p, nil }
    }
    return nil, fmt.Errorf("no connected conductor consumes topic %q", topic)
}

func (c *Client) sendEnvelope(st Stream, wmu *sync.Mutex, env *Envelope, body any) error {
    if body != nil {
        b, err := encodeBody(c.codecs, env.ContentType, body)
        if err != nil {
            return &rpc.TransportError{Op: "encode", Err: err}
        }
        env.Body = b
    }
    frame, err := env.EncodeFrame()
    if err != nil {
        return &rpc.TransportError{Op: "encode", Err: err}
    }
    if wmu != nil { wmu.Lock(); defer wmu.Unlock() }
    if err := st.SendBytes(frame); err != nil {
        return &rpc.TransportError{Op: "send", Err: err}
    }
    return nil
}

type bound struct {
    c       *Client
    topic   rpc.Topic
    version version.Version
}

func (b *bound) newEnvelope(kind MsgKind, method string) (*Envelope, error) {
    id, err := NewCorrelation()
    if err != nil {
        return nil, &rpc.TransportError{Op: "correlation", Err: err}
    }
    return &Envelope{
        ID:          id,
        Kind:        kind,
        Topic:       string(b.topic),
        Method:      method,
        Version:     b.version.String(),
        ContentType: b.c.opts.ContentType,
    }, nil
}

// Call sends a request and blocks for the reply, a remote error, or ctx/
// timeout expiry. The request is delivered at most once; an abandoned call's
// remote effects still complete.
func (b *bound) Call(ctx context.Context, method string, payload map[string]any, reply any) error {
    p, err := b.c.peerForTopic(b.topic)
    if err != nil {
        return &rpc.TransportError{Op: "call " + method, Err: err}
    }
    env, err := b.newEnvelope(MsgRequest, method)
    if err != nil { return err }

    if _, ok := ctx.Deadline(); !ok {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, b.c.opts.CallTimeout)
        defer cancel()
    }

    pr := p.pending.Put(env.ID)
    if err := b.c.sendEnvelope(p.st, &p.wmu, env, payload); err != nil {
        pr.Close()
        return err
    }
    resp, err := pr.Wait(ctx)
    if err != nil {
        return &rpc.TransportError{Op: "call " + method, Err: err}
    }
    if resp.Kind == MsgError {
        return &rpc.RemoteExecutionError{Method: method, Remote: resp.Error}
    }
    if reply == nil || len(resp.Body) == 0 {
        return nil
    }
    if err := decodeBody(b.c.codecs, resp.ContentType, resp.Body, reply); err != nil {
        return &rpc.TransportError{Op: "decode " + method, Err: err}
    }
    return nil
}

// Cast enqueues the request and returns; the handler's outcome is never
// reported back.
func (b *bound) Cast(_ context.Context, method string, payload map[string]any) error {
    p, err := b.c.peerForTopic(b.topic)
    if err != nil {
        return &rpc.TransportError{Op: "cast " + method, Err: err}
    }
    env, err := b.newEnvelope(MsgCast, method)
    if err != nil { return err }
    return b.c.sendEnvelope(p.st, &p.wmu, env, payload)
}
