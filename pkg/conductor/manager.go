package conductor

import (
    "context"
    "fmt"
    "time"

    "github.com/redhat-openstack/ironic/pkg/codec"
    "github.com/redhat-openstack/ironic/pkg/memkv"
    "github.com/redhat-openstack/ironic/pkg/objects"
)

// LocalManager is a self-contained Manager backed by an in-memory node
// store. It models enough of the node lifecycle for single-process and
// development deployments; a production deployment swaps in a Manager
// that talks to real BMCs.
type LocalManager struct {
    kv   *memkv.Store
    c    codec.Codec
    objs *objects.Registry
}

func NewLocalManager(kv *memkv.Store, objs *objects.Registry) *LocalManager {
    return &LocalManager{kv: kv, c: codec.CBOR(), objs: objs}
}

func keyNode(uuid string) string { return "node:" + uuid }
func keyPort(uuid string) string { return "port:" + uuid }

func (m *LocalManager) loadNode(nodeID string) (*objects.Object, error) {
    b, ok := m.kv.Get(keyNode(nodeID))
    if !ok {
        return nil, fmt.Errorf("node %s could not be found", nodeID)
    }
    var node objects.Object
    if err := m.c.Unmarshal(b, &node); err != nil {
        return nil, fmt.Errorf("node %s record corrupt: %w", nodeID, err)
    }
    return &node, nil
}

func (m *LocalManager) saveNode(node *objects.Object) error {
    uuid, _ := node.Field("uuid").(string)
    if uuid == "" {
        return fmt.Errorf("node object has no uuid")
    }
    b, err := m.c.Marshal(node)
    if err != nil { return err }
    m.kv.Set(keyNode(uuid), b, 0)
    return nil
}

func (m *LocalManager) mutate(nodeID string, fn func(node *objects.Object) error) (*objects.Object, error) {
    node, err := m.loadNode(nodeID)
    if err != nil { return nil, err }
    if err := fn(node); err != nil { return nil, err }
    if err := m.saveNode(node); err != nil { return nil, err }
    return node, nil
}

func (m *LocalManager) UpdateNode(_ context.Context, node *objects.Object) (*objects.Object, error) {
    if node.Type != objects.NodeType {
        return nil, fmt.Errorf("expected a node object, got %s", node.Type)
    }
    if err := m.checkVersion(node); err != nil { return nil, err }
    if err := m.saveNode(node); err != nil { return nil, err }
    return node, nil
}

// checkVersion rejects objects at a version this process has never heard
// of; accepting them would persist fields we cannot later shape.
func (m *LocalManager) checkVersion(obj *objects.Object) error {
    spec, ok := m.objs.Get(obj.Type)
    if !ok {
        return fmt.Errorf("unknown object type %q", obj.Type)
    }
    v, err := obj.VersionParsed()
    if err != nil { return err }
    if v.Major != spec.Latest.Major || v.Compare(spec.Latest) > 0 {
        return fmt.Errorf("%s version %s is newer than supported %s", obj.Type, obj.Version, spec.Latest)
    }
    return nil
}

func (m *LocalManager) ChangeNodePowerState(_ context.Context, nodeID, newState string) error {
    switch newState {
    case "power on", "power off", "rebooting":
    default:
        return fmt.Errorf("unsupported power state %q", newState)
    }
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        node.Data["power_state"] = newState
        node.Data["target_power_state"] = nil
        node.Data["last_error"] = ""
        return nil
    })
    return err
}

func (m *LocalManager) DoNodeDeploy(_ context.Context, nodeID string, rebuild bool, configdrive string) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        state, _ := node.Field("provision_state").(string)
        if !rebuild && state != "available" {
            return fmt.Errorf("node %s cannot be deployed from state %q", nodeID, state)
        }
        // synchronous model: the deploy completes in place
        node.Data["target_provision_state"] = "active"
        node.Data["provision_state"] = "active"
        if configdrive != "" {
            info, _ := node.Data["instance_info"].(map[string]any)
            if info == nil { info = map[string]any{} }
            info["configdrive"] = configdrive
            node.Data["instance_info"] = info
        }
        return nil
    })
    return err
}

func (m *LocalManager) DoNodeTearDown(_ context.Context, nodeID string) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        node.Data["target_provision_state"] = nil
        node.Data["provision_state"] = "available"
        node.Data["instance_info"] = map[string]any{}
        return nil
    })
    return err
}

func (m *LocalManager) ContinueNodeClean(_ context.Context, nodeID string) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        node.Data["clean_step"] = nil
        node.Data["provision_state"] = "available"
        return nil
    })
    return err
}

func (m *LocalManager) ValidateDriverInterfaces(_ context.Context, nodeID string) (map[string]any, error) {
    if _, err := m.loadNode(nodeID); err != nil { return nil, err }
    out := map[string]any{}
    for _, iface := range []string{"power", "deploy", "console", "boot"} {
        out[iface] = map[string]any{"result": true}
    }
    return out, nil
}

func (m *LocalManager) DestroyNode(_ context.Context, nodeID string) error {
    node, err := m.loadNode(nodeID)
    if err != nil { return err }
    if state, _ := node.Field("provision_state").(string); state == "active" {
        return fmt.Errorf("node %s is active and cannot be deleted", nodeID)
    }
    m.kv.Delete(keyNode(nodeID))
    return nil
}

func (m *LocalManager) InspectHardware(_ context.Context, nodeID string) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        now := time.Now().UTC().Format(time.RFC3339)
        node.Data["inspection_started_at"] = now
        node.Data["inspection_finished_at"] = now
        return nil
    })
    return err
}

func (m *LocalManager) GetConsoleInformation(_ context.Context, nodeID string) (map[string]any, error) {
    node, err := m.loadNode(nodeID)
    if err != nil { return nil, err }
    if on, _ := node.Field("console_enabled").(bool); !on {
        return nil, fmt.Errorf("console is not enabled on node %s", nodeID)
    }
    return map[string]any{"type": "shellinabox", "url": "http://localhost:8866/" + nodeID}, nil
}

func (m *LocalManager) SetConsoleMode(_ context.Context, nodeID string, enabled bool) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        node.Data["console_enabled"] = enabled
        return nil
    })
    return err
}

func (m *LocalManager) SetBootDevice(_ context.Context, nodeID, device string, persistent bool) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        dii, _ := node.Data["driver_internal_info"].(map[string]any)
        if dii == nil { dii = map[string]any{} }
        dii["boot_device"] = device
        dii["boot_device_persistent"] = persistent
        node.Data["driver_internal_info"] = dii
        return nil
    })
    return err
}

func (m *LocalManager) GetBootDevice(_ context.Context, nodeID string) (map[string]any, error) {
    node, err := m.loadNode(nodeID)
    if err != nil { return nil, err }
    dii, _ := node.Field("driver_internal_info").(map[string]any)
    device, _ := dii["boot_device"].(string)
    if device == "" { device = "disk" }
    persistent, _ := dii["boot_device_persistent"].(bool)
    return map[string]any{"boot_device": device, "persistent": persistent}, nil
}

func (m *LocalManager) GetSupportedBootDevices(_ context.Context, nodeID string) ([]string, error) {
    if _, err := m.loadNode(nodeID); err != nil { return nil, err }
    return []string{"pxe", "disk", "cdrom"}, nil
}

func (m *LocalManager) VendorPassthru(_ context.Context, nodeID, method, httpMethod string, info map[string]any) (map[string]any, error) {
    if _, err := m.loadNode(nodeID); err != nil { return nil, err }
    return vendorInvoke(method, httpMethod, info)
}

func (m *LocalManager) DriverVendorPassthru(_ context.Context, driver, method, httpMethod string, info map[string]any) (map[string]any, error) {
    return vendorInvoke(method, httpMethod, info)
}

func vendorInvoke(method, httpMethod string, info map[string]any) (map[string]any, error) {
    switch method {
    case "ping":
        return map[string]any{"return": "pong", "http_method": httpMethod}, nil
    case "echo":
        return map[string]any{"return": info}, nil
    default:
        return nil, fmt.Errorf("vendor method %q is not supported", method)
    }
}

func (m *LocalManager) GetNodeVendorPassthruMethods(_ context.Context, nodeID string) (map[string]any, error) {
    if _, err := m.loadNode(nodeID); err != nil { return nil, err }
    return vendorMethodTable(), nil
}

func (m *LocalManager) GetDriverVendorPassthruMethods(_ context.Context, _ string) (map[string]any, error) {
    return vendorMethodTable(), nil
}

func vendorMethodTable() map[string]any {
    return map[string]any{
        "ping": map[string]any{"async": false, "http_methods": []string{"GET", "POST"}},
        "echo": map[string]any{"async": false, "http_methods": []string{"POST"}},
    }
}

func (m *LocalManager) GetDriverProperties(_ context.Context, driver string) (map[string]string, error) {
    switch driver {
    case "ipmi":
        return map[string]string{
            "ipmi_address":  "IP address or hostname of the BMC. Required.",
            "ipmi_username": "username for the BMC. Required.",
            "ipmi_password": "password for the BMC. Required.",
        }, nil
    case "redfish":
        return map[string]string{
            "redfish_address":   "URL of the Redfish service. Required.",
            "redfish_system_id": "canonical path to the system resource. Required.",
        }, nil
    default:
        return nil, fmt.Errorf("driver %q is unknown", driver)
    }
}

func (m *LocalManager) GetRaidLogicalDiskProperties(_ context.Context, driver string) (map[string]string, error) {
    if _, err := m.GetDriverProperties(context.Background(), driver); err != nil {
        return nil, err
    }
    return map[string]string{
        "size_gb":    "size of the logical disk in GiB. Required.",
        "raid_level": "RAID level of the logical disk. Required.",
        "is_root_volume": "whether this disk carries the root volume. Optional.",
    }, nil
}

func (m *LocalManager) SetTargetRaidConfig(_ context.Context, nodeID string, target map[string]any) error {
    _, err := m.mutate(nodeID, func(node *objects.Object) error {
        node.Data["target_raid_config"] = target
        return nil
    })
    return err
}

func (m *LocalManager) UpdatePort(_ context.Context, port *objects.Object) (*objects.Object, error) {
    if port.Type != objects.PortType {
        return nil, fmt.Errorf("expected a port object, got %s", port.Type)
    }
    if err := m.checkVersion(port); err != nil { return nil, err }
    uuid, _ := port.Field("uuid").(string)
    if uuid == "" {
        return nil, fmt.Errorf("port object has no uuid")
    }
    b, err := m.c.Marshal(port)
    if err != nil { return nil, err }
    m.kv.Set(keyPort(uuid), b, 0)
    return port, nil
}
