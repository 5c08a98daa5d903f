package objects

import (
    "fmt"
    "time"

    "github.com/redhat-openstack/ironic/pkg/version"
)

// NodeType is the wire name of the node object.
const NodeType = "Node"

// Node field history. A field's version is the object version that first
// carried it; backporting below that version drops the field.
func NodeSpec() *TypeSpec {
    v := version.MustParse
    return &TypeSpec{
        Name:   NodeType,
        Latest: v("1.10"),
        Fields: map[string]version.Version{
            "uuid":                   v("1.0"),
            "chassis_uuid":           v("1.0"),
            "instance_uuid":          v("1.0"),
            "driver":                 v("1.0"),
            "driver_info":            v("1.0"),
            "properties":             v("1.0"),
            "extra":                  v("1.0"),
            "power_state":            v("1.0"),
            "target_power_state":     v("1.0"),
            "provision_state":        v("1.1"),
            "target_provision_state": v("1.1"),
            "maintenance":            v("1.2"),
            "console_enabled":        v("1.3"),
            "last_error":             v("1.4"),
            "instance_info":          v("1.5"),
            "driver_internal_info":   v("1.6"),
            "clean_step":             v("1.7"),
            "inspection_started_at":  v("1.8"),
            "inspection_finished_at": v("1.8"),
            "maintenance_reason":     v("1.9"),
            "target_raid_config":     v("1.10"),
            "raid_config":            v("1.10"),
        },
        Actions: map[string]ActionFunc{
            "set_power_state":  nodeSetPowerState,
            "set_maintenance":  nodeSetMaintenance,
            "touch_inspection": nodeTouchInspection,
        },
        ClassActions: map[string]ClassActionFunc{
            "supported_fields": nodeSupportedFields,
        },
    }
}

// NewNode builds a node object at the latest version with the baseline
// fields populated.
func NewNode(r *Registry, uuid, driver string) (*Object, error) {
    return r.New(NodeType, map[string]any{
        "uuid":            uuid,
        "driver":          driver,
        "properties":      map[string]any{},
        "extra":           map[string]any{},
        "power_state":     "power off",
        "provision_state": "available",
        "maintenance":     false,
    })
}

// NodeDriver reads the node's assigned driver name.
func NodeDriver(obj *Object) (string, error) {
    if obj.Type != NodeType {
        return "", fmt.Errorf("objects: %s is not a node", obj.Type)
    }
    d, _ := obj.Field("driver").(string)
    if d == "" {
        return "", fmt.Errorf("objects: node %v has no driver assigned", obj.Field("uuid"))
    }
    return d, nil
}

func nodeSetPowerState(obj *Object, args []any, kwargs map[string]any) (any, map[string]any, error) {
    target, _ := kwargs["target"].(string)
    if target == "" && len(args) > 0 { target, _ = args[0].(string) }
    if target == "" {
        return nil, nil, fmt.Errorf("set_power_state: missing target state")
    }
    changed := map[string]any{
        "power_state": target,
        "last_error":  "",
    }
    for k, v := range changed { obj.Data[k] = v }
    return target, changed, nil
}

func nodeSetMaintenance(obj *Object, _ []any, kwargs map[string]any) (any, map[string]any, error) {
    on, _ := kwargs["maintenance"].(bool)
    reason, _ := kwargs["reason"].(string)
    changed := map[string]any{
        "maintenance":        on,
        "maintenance_reason": reason,
    }
    for k, v := range changed { obj.Data[k] = v }
    return on, changed, nil
}

func nodeTouchInspection(obj *Object, _ []any, _ map[string]any) (any, map[string]any, error) {
    now := time.Now().UTC().Format(time.RFC3339)
    changed := map[string]any{"inspection_started_at": now}
    obj.Data["inspection_started_at"] = now
    return now, changed, nil
}

func nodeSupportedFields(_ []any, _ map[string]any) (any, error) {
    spec := NodeSpec()
    out := make([]string, 0, len(spec.Fields))
    for f := range spec.Fields { out = append(out, f) }
    return out, nil
}
