package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/bus"
    "github.com/redhat-openstack/ironic/pkg/bus/mem"
    "github.com/redhat-openstack/ironic/pkg/bus/quic"
    "github.com/redhat-openstack/ironic/pkg/bus/tcp"
    "github.com/redhat-openstack/ironic/pkg/conductor"
    "github.com/redhat-openstack/ironic/pkg/config"
    "github.com/redhat-openstack/ironic/pkg/memkv"
    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/observability"
    "github.com/redhat-openstack/ironic/pkg/registry"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("ironic-conductor started", zap.String("app", cfg.AppName))
    zap.L().Info("effective configuration", zap.Any("config", cfg))

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    kv := memkv.New(memkv.Options{})
    defer kv.Close()
    reg := registry.NewStore(kv, cfg.Registry.Liveness())
    objs := objects.DefaultRegistry()
    mgr := conductor.NewLocalManager(kv, objs)

    cond := conductor.New(conductor.Options{
        Hostname:  cfg.Hostname,
        BaseTopic: cfg.BaseTopic,
        Drivers:   cfg.Drivers,
        Heartbeat: cfg.Registry.Heartbeat(),
    }, reg, objs, mgr)

    listeners, err := listenAll(ctx, cfg)
    if err != nil {
        zap.L().Error("failed to start transports", zap.Error(err))
        return 1
    }
    if len(listeners) == 0 {
        zap.L().Error("no transport with a listen address configured")
        return 1
    }

    // the first listener owns registration/heartbeat; the rest share the
    // same handler table
    for _, ln := range listeners[1:] {
        go func(ln bus.Listener) { _ = cond.Server().Serve(ctx, ln) }(ln)
    }
    if err := cond.Serve(ctx, listeners[0]); err != nil && ctx.Err() == nil {
        zap.L().Error("serve failed", zap.Error(err))
        return 1
    }
    zap.L().Info("ironic-conductor stopped")
    return 0
}

func listenAll(ctx context.Context, cfg *config.Config) ([]bus.Listener, error) {
    var out []bus.Listener
    for _, tc := range cfg.Transports {
        if tc.Listen == "" { continue }
        tr, err := newTransport(tc.Kind)
        if err != nil { return nil, err }
        ln, err := tr.Listen(ctx, tc.Listen)
        if err != nil {
            return nil, fmt.Errorf("listen %s %s: %w", tc.Kind, tc.Listen, err)
        }
        zap.L().Info("listening", zap.String("kind", tc.Kind), zap.String("addr", ln.Addr().String()))
        out = append(out, ln)
    }
    return out, nil
}

func newTransport(kind string) (bus.Transport, error) {
    switch kind {
    case "tcp":
        return tcp.New(), nil
    case "quic":
        return quic.New(), nil
    case "mem":
        return mem.New(), nil
    default:
        return nil, fmt.Errorf("unknown transport kind %q", kind)
    }
}
