package conductor_test

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    "github.com/redhat-openstack/ironic/pkg/bus"
    "github.com/redhat-openstack/ironic/pkg/bus/mem"
    "github.com/redhat-openstack/ironic/pkg/conductor"
    "github.com/redhat-openstack/ironic/pkg/memkv"
    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/registry"
    "github.com/redhat-openstack/ironic/pkg/rpc"
)

// fakeManager records the node operations the conductor routes to it.
type fakeManager struct {
    deployed chan string
    powered  chan [2]string
}

func newFakeManager() *fakeManager {
    return &fakeManager{deployed: make(chan string, 8), powered: make(chan [2]string, 8)}
}

func (m *fakeManager) UpdateNode(_ context.Context, node *objects.Object) (*objects.Object, error) {
    node.Data["last_error"] = ""
    return node, nil
}
func (m *fakeManager) ChangeNodePowerState(_ context.Context, nodeID, newState string) error {
    m.powered <- [2]string{nodeID, newState}
    return nil
}
func (m *fakeManager) DoNodeDeploy(_ context.Context, nodeID string, rebuild bool, configdrive string) error {
    m.deployed <- nodeID
    return nil
}
func (m *fakeManager) DoNodeTearDown(context.Context, string) error    { return nil }
func (m *fakeManager) ContinueNodeClean(context.Context, string) error { return nil }
func (m *fakeManager) ValidateDriverInterfaces(_ context.Context, nodeID string) (map[string]any, error) {
    return map[string]any{"power": map[string]any{"result": true}}, nil
}
func (m *fakeManager) DestroyNode(_ context.Context, nodeID string) error {
    return errors.New("node " + nodeID + " is locked")
}
func (m *fakeManager) InspectHardware(context.Context, string) error { return nil }
func (m *fakeManager) GetConsoleInformation(_ context.Context, _ string) (map[string]any, error) {
    return map[string]any{"url": "ws://console"}, nil
}
func (m *fakeManager) SetConsoleMode(context.Context, string, bool) error { return nil }
func (m *fakeManager) SetBootDevice(context.Context, string, string, bool) error {
    return nil
}
func (m *fakeManager) GetBootDevice(_ context.Context, _ string) (map[string]any, error) {
    return map[string]any{"boot_device": "pxe", "persistent": false}, nil
}
func (m *fakeManager) GetSupportedBootDevices(_ context.Context, _ string) ([]string, error) {
    return []string{"pxe", "disk"}, nil
}
func (m *fakeManager) VendorPassthru(_ context.Context, _, method, httpMethod string, _ map[string]any) (map[string]any, error) {
    return map[string]any{"method": method, "http_method": httpMethod}, nil
}
func (m *fakeManager) DriverVendorPassthru(_ context.Context, _, method, _ string, _ map[string]any) (map[string]any, error) {
    return map[string]any{"method": method}, nil
}
func (m *fakeManager) GetNodeVendorPassthruMethods(_ context.Context, _ string) (map[string]any, error) {
    return map[string]any{"reset_bmc": map[string]any{"async": true}}, nil
}
func (m *fakeManager) GetDriverVendorPassthruMethods(_ context.Context, _ string) (map[string]any, error) {
    return map[string]any{}, nil
}
func (m *fakeManager) GetDriverProperties(_ context.Context, driver string) (map[string]string, error) {
    return map[string]string{"ipmi_address": "IP of the BMC"}, nil
}
func (m *fakeManager) GetRaidLogicalDiskProperties(_ context.Context, _ string) (map[string]string, error) {
    return map[string]string{"size_gb": "disk size"}, nil
}
func (m *fakeManager) SetTargetRaidConfig(context.Context, string, map[string]any) error {
    return nil
}
func (m *fakeManager) UpdatePort(_ context.Context, port *objects.Object) (*objects.Object, error) {
    return port, nil
}

type env struct {
    api  *rpc.ConductorAPI
    reg  *registry.Store
    objs *objects.Registry
    mgr  *fakeManager
}

// startStack runs a full conductor behind a mem bus and returns a dispatch
// API wired to it through the registry.
func startStack(t *testing.T, hostname string, drivers []string) *env {
    t.Helper()
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)

    reg := registry.NewStore(memkv.New(memkv.Options{}), registry.DefaultLiveness)
    objs := objects.DefaultRegistry()
    mgr := newFakeManager()

    cond := conductor.New(conductor.Options{
        Hostname:  hostname,
        BaseTopic: "ironic.conductor_manager",
        Drivers:   drivers,
        Heartbeat: 50 * time.Millisecond,
    }, reg, objs, mgr)

    tr := mem.New()
    ln, err := tr.Listen(ctx, hostname)
    if err != nil { t.Fatalf("listen: %v", err) }
    go cond.Serve(ctx, ln)

    // conductor registers synchronously before serving; wait for the record
    deadline := time.Now().Add(2 * time.Second)
    for !reg.IsAlive(hostname) {
        if time.Now().After(deadline) { t.Fatal("conductor never registered") }
        time.Sleep(5 * time.Millisecond)
    }

    cli := bus.NewClient(bus.ClientOptions{Hostname: "api-1", CallTimeout: 5 * time.Second})
    t.Cleanup(cli.Close)
    if err := cli.Connect(ctx, tr, hostname); err != nil { t.Fatalf("connect: %v", err) }

    res := rpc.NewResolver(reg, "ironic.conductor_manager", nil)
    return &env{api: rpc.NewConductorAPI(cli, res), reg: reg, objs: objs, mgr: mgr}
}

func TestEndToEndCallViaResolvedTopic(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    node, err := objects.NewNode(e.objs, "node-1", "ipmi")
    if err != nil { t.Fatalf("new node: %v", err) }

    topic, err := e.api.TopicFor(node)
    if err != nil { t.Fatalf("resolve: %v", err) }
    if topic != "ironic.conductor_manager.cond-1" {
        t.Fatalf("resolved topic %q", topic)
    }

    if err := e.api.ChangeNodePowerState(context.Background(), topic, "node-1", "power on"); err != nil {
        t.Fatalf("change power state: %v", err)
    }
    select {
    case got := <-e.mgr.powered:
        if got != [2]string{"node-1", "power on"} { t.Fatalf("manager saw %v", got) }
    case <-time.After(2 * time.Second):
        t.Fatal("manager never ran")
    }
}

func TestDeployIsCastAndReachesManager(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    topic, err := e.api.TopicForDriver("ipmi")
    if err != nil { t.Fatalf("resolve: %v", err) }

    if err := e.api.DoNodeDeploy(context.Background(), topic, "node-1", false, ""); err != nil {
        t.Fatalf("deploy: %v", err)
    }
    select {
    case id := <-e.mgr.deployed:
        if id != "node-1" { t.Fatalf("deployed %q", id) }
    case <-time.After(2 * time.Second):
        t.Fatal("deploy never reached the manager")
    }
}

func TestUpdateNodeRoundtrip(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    node, _ := objects.NewNode(e.objs, "node-1", "ipmi")
    topic, _ := e.api.TopicFor(node)

    got, err := e.api.UpdateNode(context.Background(), topic, node)
    if err != nil { t.Fatalf("update node: %v", err) }
    if got.Field("uuid") != "node-1" || got.Field("last_error") != "" {
        t.Fatalf("unexpected node back: %v", got.Data)
    }
}

func TestRemoteManagerErrorSurfaces(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    topic, _ := e.api.TopicForDriver("ipmi")

    err := e.api.DestroyNode(context.Background(), topic, "node-1")
    var ree *rpc.RemoteExecutionError
    if !errors.As(err, &ree) || !strings.Contains(ree.Remote, "is locked") {
        t.Fatalf("want remote lock error, got %v", err)
    }
}

func TestObjectActionBackportsChanges(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    topic, _ := e.api.TopicForDriver("ipmi")

    // Caller holds a 1.3 node: last_error (1.4) must not travel back even
    // though set_power_state changes it.
    node := &objects.Object{Type: objects.NodeType, Version: "1.3", Data: map[string]any{
        "uuid":   "node-1",
        "driver": "ipmi",
    }}
    out, err := e.api.ObjectAction(context.Background(), topic, node, "set_power_state",
        nil, map[string]any{"target": "power on"})
    if err != nil { t.Fatalf("object action: %v", err) }
    if out.Result != "power on" {
        t.Fatalf("result %v", out.Result)
    }
    if out.Changes == nil || out.Changes.Version != "1.3" {
        t.Fatalf("changes not at caller version: %+v", out.Changes)
    }
    if out.Changes.Field("power_state") != "power on" {
        t.Fatalf("power_state missing from changes: %v", out.Changes.Data)
    }
    if _, present := out.Changes.Data["last_error"]; present {
        t.Fatal("1.4 field leaked into 1.3 changes")
    }
}

func TestObjectBackportVersions(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    topic, _ := e.api.TopicForDriver("ipmi")

    node, _ := objects.NewNode(e.objs, "node-1", "ipmi")
    node.Data["maintenance_reason"] = "fan failure"

    old, err := e.api.ObjectBackportVersions(context.Background(), topic, node,
        map[string]string{objects.NodeType: "1.2"})
    if err != nil { t.Fatalf("backport: %v", err) }
    if old.Version != "1.2" {
        t.Fatalf("backported to %q", old.Version)
    }
    if _, present := old.Data["maintenance_reason"]; present {
        t.Fatal("1.9 field survived backport to 1.2")
    }
    if old.Field("uuid") != "node-1" {
        t.Fatalf("baseline field lost: %v", old.Data)
    }
}

func TestObjectClassActionVersions(t *testing.T) {
    e := startStack(t, "cond-1", []string{"ipmi"})
    topic, _ := e.api.TopicForDriver("ipmi")

    out, err := e.api.ObjectClassActionVersions(context.Background(), topic,
        objects.NodeType, "supported_fields", map[string]string{objects.NodeType: "1.10"}, nil, nil)
    if err != nil { t.Fatalf("class action: %v", err) }
    fields, ok := out.([]any)
    if !ok || len(fields) == 0 {
        t.Fatalf("unexpected class action result %T %v", out, out)
    }
}

func TestHeartbeatKeepsRecordAlive(t *testing.T) {
    reg := registry.NewStore(memkv.New(memkv.Options{}), 150*time.Millisecond)
    cond := conductor.New(conductor.Options{
        Hostname:  "cond-hb",
        BaseTopic: "ironic.conductor_manager",
        Drivers:   []string{"ipmi"},
        Heartbeat: 40 * time.Millisecond,
    }, reg, objects.DefaultRegistry(), newFakeManager())

    ctx, cancel := context.WithCancel(context.Background())
    tr := mem.New()
    ln, err := tr.Listen(ctx, "cond-hb")
    if err != nil { t.Fatalf("listen: %v", err) }
    done := make(chan struct{})
    go func() { cond.Serve(ctx, ln); close(done) }()

    deadline := time.Now().Add(2 * time.Second)
    for !reg.IsAlive("cond-hb") {
        if time.Now().After(deadline) { t.Fatal("never registered") }
        time.Sleep(5 * time.Millisecond)
    }

    // outlive the liveness window several times over
    time.Sleep(500 * time.Millisecond)
    if !reg.IsAlive("cond-hb") {
        t.Fatal("record expired despite heartbeats")
    }

    cancel()
    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("serve did not stop")
    }
    if reg.IsAlive("cond-hb") {
        t.Fatal("record survived shutdown")
    }
}
