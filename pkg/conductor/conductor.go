// Package conductor is the serving side of the dispatch layer: it keeps the
// conductor's registry record alive, consumes the base and host-pinned
// topics, and executes incoming methods against a Manager.
package conductor

import (
    "context"
    "time"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/bus"
    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/registry"
    "github.com/redhat-openstack/ironic/pkg/rpc"
)

// Manager executes the node-facing operations a conductor is asked to
// perform. Implementations own locking and driver access; the conductor
// only routes to them.
type Manager interface {
    UpdateNode(ctx context.Context, node *objects.Object) (*objects.Object, error)
    ChangeNodePowerState(ctx context.Context, nodeID, newState string) error
    DoNodeDeploy(ctx context.Context, nodeID string, rebuild bool, configdrive string) error
    DoNodeTearDown(ctx context.Context, nodeID string) error
    ContinueNodeClean(ctx context.Context, nodeID string) error
    ValidateDriverInterfaces(ctx context.Context, nodeID string) (map[string]any, error)
    DestroyNode(ctx context.Context, nodeID string) error
    InspectHardware(ctx context.Context, nodeID string) error
    GetConsoleInformation(ctx context.Context, nodeID string) (map[string]any, error)
    SetConsoleMode(ctx context.Context, nodeID string, enabled bool) error
    SetBootDevice(ctx context.Context, nodeID, device string, persistent bool) error
    GetBootDevice(ctx context.Context, nodeID string) (map[string]any, error)
    GetSupportedBootDevices(ctx context.Context, nodeID string) ([]string, error)
    VendorPassthru(ctx context.Context, nodeID, method, httpMethod string, info map[string]any) (map[string]any, error)
    DriverVendorPassthru(ctx context.Context, driver, method, httpMethod string, info map[string]any) (map[string]any, error)
    GetNodeVendorPassthruMethods(ctx context.Context, nodeID string) (map[string]any, error)
    GetDriverVendorPassthruMethods(ctx context.Context, driver string) (map[string]any, error)
    GetDriverProperties(ctx context.Context, driver string) (map[string]string, error)
    GetRaidLogicalDiskProperties(ctx context.Context, driver string) (map[string]string, error)
    SetTargetRaidConfig(ctx context.Context, nodeID string, target map[string]any) error
    UpdatePort(ctx context.Context, port *objects.Object) (*objects.Object, error)
}

// Options configures one conductor process.
type Options struct {
    Hostname  string
    BaseTopic string
    // Drivers this conductor can serve; becomes its registry record.
    Drivers []string
    // Heartbeat is the Touch interval; zero means a third of the
    // registry's liveness window.
    Heartbeat time.Duration
}

// Conductor couples a registry record to a bus server. While Serve runs the
// record stays fresh; when it returns the record is gone.
type Conductor struct {
    opts Options
    reg  *registry.Store
    objs *objects.Registry
    mgr  Manager
    srv  *bus.Server
}

func New(opts Options, reg *registry.Store, objs *objects.Registry, mgr Manager) *Conductor {
    if opts.Heartbeat <= 0 {
        opts.Heartbeat = registry.DefaultLiveness / 3
    }
    topics := []string{opts.BaseTopic, opts.BaseTopic + "." + opts.Hostname}
    c := &Conductor{
        opts: opts,
        reg:  reg,
        objs: objs,
        mgr:  mgr,
        srv:  bus.NewServer(opts.Hostname, topics),
    }
    c.wire()
    return c
}

// Server exposes the underlying bus server, mainly so extra methods can be
// registered before Serve.
func (c *Conductor) Server() *bus.Server { return c.srv }

// Serve registers the conductor, keeps its record fresh and serves the bus
// until ctx ends.
func (c *Conductor) Serve(ctx context.Context, ln bus.Listener) error {
    if err := c.reg.Register(c.opts.Hostname, c.opts.Drivers); err != nil {
        return err
    }
    defer c.reg.Unregister(c.opts.Hostname)

    hbCtx, hbStop := context.WithCancel(ctx)
    defer hbStop()
    go c.heartbeat(hbCtx)

    zap.L().Info("conductor serving",
        zap.String("hostname", c.opts.Hostname),
        zap.String("base_topic", c.opts.BaseTopic),
        zap.Strings("drivers", c.opts.Drivers),
        zap.String("rpc_version", rpc.APIVersion.String()))
    return c.srv.Serve(ctx, ln)
}

func (c *Conductor) heartbeat(ctx context.Context) {
    t := time.NewTicker(c.opts.Heartbeat)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            if err := c.reg.Touch(c.opts.Hostname); err != nil {
                // expired while we slept; re-register rather than vanish
                zap.L().Warn("heartbeat lapsed, re-registering", zap.String("hostname", c.opts.Hostname), zap.Error(err))
                if err := c.reg.Register(c.opts.Hostname, c.opts.Drivers); err != nil {
                    zap.L().Error("re-register failed", zap.Error(err))
                }
            }
        }
    }
}
