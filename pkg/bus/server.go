package bus

import (
    "context"
    "errors"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/codec"
    "github.com/redhat-openstack/ironic/pkg/rpc"
    "github.com/redhat-openstack/ironic/pkg/version"
)

// Handler executes one method on the serving side. ver is the wire version
// the caller pinned; payload is the version-shaped field map.
type Handler func(ctx context.Context, ver version.Version, payload map[string]any) (any, error)

// Server is the conductor side of the bus: it accepts sessions, answers
// hello exchanges, and dispatches request/cast envelopes to handlers.
type Server struct {
    hostname string
    topics   map[string]struct{}
    topicLst []string
    max      version.Version
    codecs   *codec.Registry

    mu       sync.RWMutex
    handlers map[string]Handler
}

// NewServer builds a server identified as hostname, consuming the given
// topics (the base topic plus its own pinned `base.hostname` form).
func NewServer(hostname string, topics []string) *Server {
    s := &Server{
        hostname: hostname,
        topics:   make(map[string]struct{}, len(topics)),
        topicLst: append([]string(nil), topics...),
        max:      rpc.APIVersion,
        codecs:   codec.NewRegistry(),
        handlers: make(map[string]Handler),
    }
    for _, t := range topics { s.topics[t] = struct{}{} }
    return s
}

// Handle registers the handler for a method name. All registration happens
// before Serve.
func (s *Server) Handle(method string, h Handler) {
    s.mu.Lock(); s.handlers[method] = h; s.mu.Unlock()
}

func (s *Server) handler(method string) (Handler, bool) {
    s.mu.RLock(); defer s.mu.RUnlock()
    h, ok := s.handlers[method]
    return h, ok
}

// Serve accepts sessions until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context, ln Listener) error {
    for {
        sess, err := ln.Accept(ctx)
        if err != nil {
            if ctx.Err() != nil || errors.Is(err, context.Canceled) {
                return ctx.Err()
            }
            return err
        }
        go s.serveSession(ctx, sess)
    }
}

func (s *Server) serveSession(ctx context.Context, sess Session) {
    defer sess.Close()
    go func() { <-ctx.Done(); _ = sess.Close() }()

    st, err := sess.AcceptStream(ctx)
    if err != nil {
        zap.L().Warn("accept stream", zap.Error(err))
        return
    }
    var wmu sync.Mutex

    // first frame must be a hello
    peer, err := s.acceptHello(st, &wmu)
    if err != nil {
        zap.L().Warn("hello exchange failed", zap.Error(err))
        return
    }
    zap.L().Info("caller connected", zap.String("peer", peer))

    for {
        b, err := st.RecvBytes()
        if err != nil {
            zap.L().Debug("caller session ended", zap.String("peer", peer), zap.Error(err))
            return
        }
        var env Envelope
        if err := env.DecodeFrame(b); err != nil {
            zap.L().Warn("undecodable frame", zap.String("peer", peer), zap.Error(err))
            continue
        }
        switch env.Kind {
        case MsgRequest:
            go s.handleRequest(ctx, st, &wmu, &env)
        case MsgCast:
            go s.handleCast(ctx, &env)
        default:
            zap.L().Warn("unexpected frame kind", zap.String("peer", peer), zap.Uint8("kind", uint8(env.Kind)))
        }
    }
}

func (s *Server) acceptHello(st Stream, wmu *sync.Mutex) (string, error) {
    b, err := st.RecvBytes()
    if err != nil { return "", err }
    var env Envelope
    if err := env.DecodeFrame(b); err != nil { return "", err }
    if env.Kind != MsgHello {
        return "", fmt.Errorf("first frame kind %d, want hello", env.Kind)
    }
    var hello Hello
    if err := decodeBody(s.codecs, env.ContentType, env.Body, &hello); err != nil {
        return "", err
    }
    ack := Hello{Hostname: s.hostname, MaxVersion: s.max.String(), Topics: s.topicLst}
    body, err := encodeBody(s.codecs, env.ContentType, &ack)
    if err != nil { return "", err }
    out := Envelope{Kind: MsgHelloAck, ContentType: env.ContentType, Body: body}
    frame, err := out.EncodeFrame()
    if err != nil { return "", err }
    wmu.Lock(); defer wmu.Unlock()
    return hello.Hostname, st.SendBytes(frame)
}

// run validates topic/version/method and executes the handler.
func (s *Server) run(ctx context.Context, env *Envelope) (any, error) {
    if _, ok := s.topics[env.Topic]; !ok {
        return nil, fmt.Errorf("topic %q not consumed here", env.Topic)
    }
    ver, err := version.Parse(env.Version)
    if err != nil {
        return nil, fmt.Errorf("bad version %q", env.Version)
    }
    if !version.CanSend(ver, s.max) {
        return nil, fmt.Errorf("version %s not supported (max %s)", ver, s.max)
    }
    h, ok := s.handler(env.Method)
    if !ok {
        return nil, fmt.Errorf("no handler for method %q", env.Method)
    }
    var payload map[string]any
    if len(env.Body) > 0 {
        if err := decodeBody(s.codecs, env.ContentType, env.Body, &payload); err != nil {
            return nil, fmt.Errorf("undecodable payload: %v", err)
        }
    }
    return h(ctx, ver, payload)
}

func (s *Server) handleRequest(ctx context.Context, st Stream, wmu *sync.Mutex, env *Envelope) {
    result, err := s.run(ctx, env)
    out := Envelope{ID: env.ID, ContentType: env.ContentType}
    if err != nil {
        out.Kind = MsgError
        out.Error = err.Error()
        zap.L().Debug("request failed", zap.String("method", env.Method), zap.Error(err))
    } else {
        out.Kind = MsgReply
        if result != nil {
            body, encErr := encodeBody(s.codecs, env.ContentType, result)
            if encErr != nil {
                out.Kind = MsgError
                out.Error = encErr.Error()
            } else {
                out.Body = body
            }
        }
    }
    frame, err := out.EncodeFrame()
    if err != nil {
        zap.L().Error("encode reply", zap.String("method", env.Method), zap.Error(err))
        return
    }
    wmu.Lock(); defer wmu.Unlock()
    if err := st.SendBytes(frame); err != nil {
        zap.L().Warn("send reply", zap.String("method", env.Method), zap.Error(err))
    }
}

// handleCast runs the handler and drops its outcome; casts never reply.
func (s *Server) handleCast(ctx context.Context, env *Envelope) {
    if _, err := s.run(ctx, env); err != nil {
        zap.L().Warn("cast failed", zap.String("method", env.Method), zap.Error(err))
    }
}
