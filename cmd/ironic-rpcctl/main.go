// ironic-rpcctl issues single dispatch operations against a running
// conductor, mainly for poking at deployments from the command line.
package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "time"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/bus"
    busquic "github.com/redhat-openstack/ironic/pkg/bus/quic"
    bustcp "github.com/redhat-openstack/ironic/pkg/bus/tcp"
    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/rpc"
)

func main() {
    kind := flag.String("kind", "tcp", "transport kind: tcp|quic")
    addr := flag.String("addr", "127.0.0.1:6385", "conductor address to connect to")
    base := flag.String("base-topic", "ironic.conductor_manager", "base RPC topic")
    host := flag.String("host", "", "conductor hostname; pins the host topic when set")
    node := flag.String("node", "", "node uuid")
    driver := flag.String("driver", "", "driver name")
    device := flag.String("device", "disk", "boot device for set-boot-device")
    persistent := flag.Bool("persistent", false, "persist the boot device")
    state := flag.String("state", "", "target power state for power")
    timeout := flag.Duration("timeout", 10*time.Second, "dial/call timeout")
    flag.Parse()

    method := flag.Arg(0)
    if method == "" {
        fatalf("usage: ironic-rpcctl [flags] <method>\nmethods: power, deploy, tear-down, validate, get-boot-device, set-boot-device, supported-boot-devices, console-info, driver-properties, vendor-ping")
    }

    // ctl output goes to stdout; keep the logger quiet
    zap.ReplaceGlobals(zap.NewNop())

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    var tr bus.Transport
    switch *kind {
    case "tcp":
        tr = bustcp.New()
    case "quic":
        tr = busquic.New()
    default:
        fatalf("unknown transport kind %q", *kind)
    }

    cli := bus.NewClient(bus.ClientOptions{Hostname: "ironic-rpcctl", CallTimeout: *timeout})
    defer cli.Close()
    if err := cli.Connect(ctx, tr, *addr); err != nil {
        fatalf("connect %s: %v", *addr, err)
    }

    topic := rpc.Topic(*base)
    if *host != "" {
        topic = rpc.Topic(*base + "." + *host)
    }
    api := rpc.NewConductorAPI(cli, rpc.NewResolver(nil, rpc.Topic(*base), nil))

    result, err := invoke(ctx, api, topic, method, args{
        node: *node, driver: *driver, device: *device, persistent: *persistent, state: *state,
    })
    if err != nil { fatalf("%s: %v", method, err) }
    if result != nil {
        out, _ := json.MarshalIndent(result, "", "  ")
        fmt.Println(string(out))
    }
}

type args struct {
    node, driver, device, state string
    persistent                  bool
}

func invoke(ctx context.Context, api *rpc.ConductorAPI, topic rpc.Topic, method string, a args) (any, error) {
    switch method {
    case "power":
        return nil, api.ChangeNodePowerState(ctx, topic, need(a.node, "-node"), need(a.state, "-state"))
    case "deploy":
        return nil, api.DoNodeDeploy(ctx, topic, need(a.node, "-node"), false, "")
    case "tear-down":
        return nil, api.DoNodeTearDown(ctx, topic, need(a.node, "-node"))
    case "validate":
        return api.ValidateDriverInterfaces(ctx, topic, need(a.node, "-node"))
    case "get-boot-device":
        return api.GetBootDevice(ctx, topic, need(a.node, "-node"))
    case "set-boot-device":
        return nil, api.SetBootDevice(ctx, topic, need(a.node, "-node"), a.device, a.persistent)
    case "supported-boot-devices":
        return api.GetSupportedBootDevices(ctx, topic, need(a.node, "-node"))
    case "console-info":
        return api.GetConsoleInformation(ctx, topic, need(a.node, "-node"))
    case "driver-properties":
        return api.GetDriverProperties(ctx, topic, need(a.driver, "-driver"))
    case "vendor-ping":
        return api.VendorPassthru(ctx, topic, need(a.node, "-node"), "ping", "GET", nil)
    case "backport-node":
        // round-trips a freshly built node through object_backport_versions
        objs := objects.DefaultRegistry()
        n, err := objects.NewNode(objs, need(a.node, "-node"), a.driver)
        if err != nil { return nil, err }
        return api.ObjectBackportVersions(ctx, topic, n, map[string]string{objects.NodeType: "1.0"})
    default:
        return nil, fmt.Errorf("unknown method %q", method)
    }
}

func need(v, flagName string) string {
    if v == "" { fatalf("%s is required for this method", flagName) }
    return v
}

func fatalf(format string, args ...any) {
    _, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
    os.Exit(1)
}
