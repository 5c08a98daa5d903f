package conductor

import (
    "context"
    "fmt"

    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/version"
)

// Payload accessors. Bodies decode into map[string]any, so every argument
// comes out as an interface value; missing required keys are caller bugs
// and fail the request.

func stringArg(p map[string]any, key string) (string, error) {
    v, ok := p[key]
    if !ok {
        return "", fmt.Errorf("missing argument %q", key)
    }
    s, ok := v.(string)
    if !ok {
        return "", fmt.Errorf("argument %q: want string, got %T", key, v)
    }
    return s, nil
}

func optStringArg(p map[string]any, key string) string {
    s, _ := p[key].(string)
    return s
}

func boolArg(p map[string]any, key string) bool {
    b, _ := p[key].(bool)
    return b
}

func mapArg(p map[string]any, key string) map[string]any {
    m, _ := p[key].(map[string]any)
    return m
}

func listArg(p map[string]any, key string) []any {
    l, _ := p[key].([]any)
    return l
}

func stringMapArg(p map[string]any, key string) map[string]string {
    m, _ := p[key].(map[string]any)
    if m == nil { return nil }
    out := make(map[string]string, len(m))
    for k, v := range m {
        if s, ok := v.(string); ok { out[k] = s }
    }
    return out
}

// objectArg reconstructs a wire object embedded in the payload.
func objectArg(p map[string]any, key string) (*objects.Object, error) {
    m, ok := p[key].(map[string]any)
    if !ok {
        return nil, fmt.Errorf("argument %q: want object, got %T", key, p[key])
    }
    typ, _ := m["type"].(string)
    ver, _ := m["version"].(string)
    if typ == "" || ver == "" {
        return nil, fmt.Errorf("argument %q: object missing type or version", key)
    }
    data, _ := m["data"].(map[string]any)
    return &objects.Object{Type: typ, Version: ver, Data: data}, nil
}

// wire registers a handler per catalog method. Casts and calls share the
// same shape here; the bus layer decides whether anyone waits for the
// return value.
func (c *Conductor) wire() {
    s := c.srv

    s.Handle("update_node", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        node, err := objectArg(p, "node_obj")
        if err != nil { return nil, err }
        return c.mgr.UpdateNode(ctx, node)
    })
    s.Handle("change_node_power_state", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        newState, err := stringArg(p, "new_state")
        if err != nil { return nil, err }
        return nil, c.mgr.ChangeNodePowerState(ctx, nodeID, newState)
    })
    s.Handle("do_node_deploy", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.DoNodeDeploy(ctx, nodeID, boolArg(p, "rebuild"), optStringArg(p, "configdrive"))
    })
    s.Handle("do_node_tear_down", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.DoNodeTearDown(ctx, nodeID)
    })
    s.Handle("continue_node_clean", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.ContinueNodeClean(ctx, nodeID)
    })
    s.Handle("validate_driver_interfaces", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return c.mgr.ValidateDriverInterfaces(ctx, nodeID)
    })
    s.Handle("destroy_node", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.DestroyNode(ctx, nodeID)
    })
    s.Handle("inspect_hardware", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.InspectHardware(ctx, nodeID)
    })
    s.Handle("get_console_information", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return c.mgr.GetConsoleInformation(ctx, nodeID)
    })
    s.Handle("set_console_mode", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.SetConsoleMode(ctx, nodeID, boolArg(p, "enabled"))
    })
    s.Handle("set_boot_device", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        device, err := stringArg(p, "device")
        if err != nil { return nil, err }
        return nil, c.mgr.SetBootDevice(ctx, nodeID, device, boolArg(p, "persistent"))
    })
    s.Handle("get_boot_device", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return c.mgr.GetBootDevice(ctx, nodeID)
    })
    s.Handle("get_supported_boot_devices", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return c.mgr.GetSupportedBootDevices(ctx, nodeID)
    })
    s.Handle("vendor_passthru", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        method, err := stringArg(p, "driver_method")
        if err != nil { return nil, err }
        return c.mgr.VendorPassthru(ctx, nodeID, method, optStringArg(p, "http_method"), mapArg(p, "info"))
    })
    s.Handle("driver_vendor_passthru", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        driver, err := stringArg(p, "driver_name")
        if err != nil { return nil, err }
        method, err := stringArg(p, "driver_method")
        if err != nil { return nil, err }
        return c.mgr.DriverVendorPassthru(ctx, driver, method, optStringArg(p, "http_method"), mapArg(p, "info"))
    })
    s.Handle("get_node_vendor_passthru_methods", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return c.mgr.GetNodeVendorPassthruMethods(ctx, nodeID)
    })
    s.Handle("get_driver_vendor_passthru_methods", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        driver, err := stringArg(p, "driver_name")
        if err != nil { return nil, err }
        return c.mgr.GetDriverVendorPassthruMethods(ctx, driver)
    })
    s.Handle("get_driver_properties", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        driver, err := stringArg(p, "driver_name")
        if err != nil { return nil, err }
        return c.mgr.GetDriverProperties(ctx, driver)
    })
    s.Handle("get_raid_logical_disk_properties", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        driver, err := stringArg(p, "driver_name")
        if err != nil { return nil, err }
        return c.mgr.GetRaidLogicalDiskProperties(ctx, driver)
    })
    s.Handle("set_target_raid_config", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        nodeID, err := stringArg(p, "node_id")
        if err != nil { return nil, err }
        return nil, c.mgr.SetTargetRaidConfig(ctx, nodeID, mapArg(p, "target_raid_config"))
    })
    s.Handle("update_port", func(ctx context.Context, _ version.Version, p map[string]any) (any, error) {
        port, err := objectArg(p, "port_obj")
        if err != nil { return nil, err }
        return c.mgr.UpdatePort(ctx, port)
    })

    s.Handle("object_action", c.objectAction)
    s.Handle("object_class_action_versions", c.objectClassActionVersions)
    s.Handle("object_backport_versions", c.objectBackportVersions)
}

// objectAction runs a named action on the received object and reports the
// changed fields backported to the version the caller's copy declared.
func (c *Conductor) objectAction(_ context.Context, _ version.Version, p map[string]any) (any, error) {
    obj, err := objectArg(p, "objinst")
    if err != nil { return nil, err }
    method, err := stringArg(p, "objmethod")
    if err != nil { return nil, err }

    spec, ok := c.objs.Get(obj.Type)
    if !ok {
        return nil, fmt.Errorf("unknown object type %q", obj.Type)
    }
    act, ok := spec.Actions[method]
    if !ok {
        return nil, fmt.Errorf("object %s has no action %q", obj.Type, method)
    }
    callerVer, err := obj.VersionParsed()
    if err != nil {
        return nil, fmt.Errorf("object %s carries bad version %q", obj.Type, obj.Version)
    }

    result, changed, err := act(obj, listArg(p, "args"), mapArg(p, "kwargs"))
    if err != nil { return nil, err }

    out := map[string]any{"result": result}
    if len(changed) > 0 {
        out["changes"] = &objects.Object{
            Type:    obj.Type,
            Version: obj.Version,
            Data:    objects.ShapeFields(spec, changed, callerVer),
        }
    }
    return out, nil
}

// objectClassActionVersions runs a type-scoped action. Results that are
// objects come back at the version the caller declared it can decode.
func (c *Conductor) objectClassActionVersions(_ context.Context, _ version.Version, p map[string]any) (any, error) {
    name, err := stringArg(p, "objname")
    if err != nil { return nil, err }
    method, err := stringArg(p, "objmethod")
    if err != nil { return nil, err }

    spec, ok := c.objs.Get(name)
    if !ok {
        return nil, fmt.Errorf("unknown object type %q", name)
    }
    act, ok := spec.ClassActions[method]
    if !ok {
        return nil, fmt.Errorf("object %s has no class action %q", name, method)
    }
    result, err := act(listArg(p, "args"), mapArg(p, "kwargs"))
    if err != nil { return nil, err }

    if obj, ok := result.(*objects.Object); ok {
        return c.backportTo(obj, stringMapArg(p, "object_versions"))
    }
    return result, nil
}

// objectBackportVersions downgrades the received object to the version the
// caller can decode.
func (c *Conductor) objectBackportVersions(_ context.Context, _ version.Version, p map[string]any) (any, error) {
    obj, err := objectArg(p, "objinst")
    if err != nil { return nil, err }
    return c.backportTo(obj, stringMapArg(p, "object_versions"))
}

func (c *Conductor) backportTo(obj *objects.Object, versions map[string]string) (*objects.Object, error) {
    want, ok := versions[obj.Type]
    if !ok {
        return nil, fmt.Errorf("no target version for object type %q", obj.Type)
    }
    target, err := version.Parse(want)
    if err != nil {
        return nil, fmt.Errorf("bad target version %q for %s", want, obj.Type)
    }
    return c.objs.Backport(obj, target)
}
