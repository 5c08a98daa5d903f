package conductor_test

import (
    "context"
    "testing"

    "github.com/redhat-openstack/ironic/pkg/conductor"
    "github.com/redhat-openstack/ironic/pkg/memkv"
    "github.com/redhat-openstack/ironic/pkg/objects"
)

func newLocal(t *testing.T) (*conductor.LocalManager, *objects.Object) {
    t.Helper()
    objs := objects.DefaultRegistry()
    m := conductor.NewLocalManager(memkv.New(memkv.Options{}), objs)
    node, err := objects.NewNode(objs, "node-1", "ipmi")
    if err != nil { t.Fatalf("new node: %v", err) }
    if _, err := m.UpdateNode(context.Background(), node); err != nil {
        t.Fatalf("seed node: %v", err)
    }
    return m, node
}

func TestLocalManagerPowerLifecycle(t *testing.T) {
    m, _ := newLocal(t)
    ctx := context.Background()

    if err := m.ChangeNodePowerState(ctx, "node-1", "power on"); err != nil {
        t.Fatalf("power on: %v", err)
    }
    if err := m.ChangeNodePowerState(ctx, "node-1", "warp speed"); err == nil {
        t.Fatal("bogus power state accepted")
    }
    if err := m.ChangeNodePowerState(ctx, "node-9", "power on"); err == nil {
        t.Fatal("unknown node accepted")
    }
}

func TestLocalManagerDeployAndTearDown(t *testing.T) {
    m, _ := newLocal(t)
    ctx := context.Background()

    if err := m.DoNodeDeploy(ctx, "node-1", false, "cfg-drive-data"); err != nil {
        t.Fatalf("deploy: %v", err)
    }
    // already active: a plain deploy must refuse, a rebuild must not
    if err := m.DoNodeDeploy(ctx, "node-1", false, ""); err == nil {
        t.Fatal("deploy from active state accepted")
    }
    if err := m.DoNodeDeploy(ctx, "node-1", true, ""); err != nil {
        t.Fatalf("rebuild: %v", err)
    }
    if err := m.DestroyNode(ctx, "node-1"); err == nil {
        t.Fatal("destroyed an active node")
    }
    if err := m.DoNodeTearDown(ctx, "node-1"); err != nil {
        t.Fatalf("tear down: %v", err)
    }
    if err := m.DestroyNode(ctx, "node-1"); err != nil {
        t.Fatalf("destroy: %v", err)
    }
    if _, err := m.GetBootDevice(ctx, "node-1"); err == nil {
        t.Fatal("destroyed node still readable")
    }
}

func TestLocalManagerBootDevice(t *testing.T) {
    m, _ := newLocal(t)
    ctx := context.Background()

    if err := m.SetBootDevice(ctx, "node-1", "pxe", true); err != nil {
        t.Fatalf("set boot device: %v", err)
    }
    got, err := m.GetBootDevice(ctx, "node-1")
    if err != nil { t.Fatalf("get boot device: %v", err) }
    if got["boot_device"] != "pxe" || got["persistent"] != true {
        t.Fatalf("boot device %v", got)
    }
}

func TestLocalManagerConsole(t *testing.T) {
    m, _ := newLocal(t)
    ctx := context.Background()

    if _, err := m.GetConsoleInformation(ctx, "node-1"); err == nil {
        t.Fatal("console info with console disabled")
    }
    if err := m.SetConsoleMode(ctx, "node-1", true); err != nil {
        t.Fatalf("enable console: %v", err)
    }
    info, err := m.GetConsoleInformation(ctx, "node-1")
    if err != nil { t.Fatalf("console info: %v", err) }
    if info["type"] != "shellinabox" {
        t.Fatalf("console info %v", info)
    }
}

func TestLocalManagerVendorPassthru(t *testing.T) {
    m, _ := newLocal(t)
    ctx := context.Background()

    out, err := m.VendorPassthru(ctx, "node-1", "ping", "GET", nil)
    if err != nil { t.Fatalf("ping: %v", err) }
    if out["return"] != "pong" { t.Fatalf("ping returned %v", out) }

    if _, err := m.VendorPassthru(ctx, "node-1", "self_destruct", "POST", nil); err == nil {
        t.Fatal("unknown vendor method accepted")
    }
}

func TestLocalManagerDriverProperties(t *testing.T) {
    m, _ := newLocal(t)
    ctx := context.Background()

    props, err := m.GetDriverProperties(ctx, "ipmi")
    if err != nil { t.Fatalf("driver properties: %v", err) }
    if _, ok := props["ipmi_address"]; !ok {
        t.Fatalf("ipmi properties %v", props)
    }
    if _, err := m.GetDriverProperties(ctx, "fake"); err == nil {
        t.Fatal("unknown driver accepted")
    }
}
