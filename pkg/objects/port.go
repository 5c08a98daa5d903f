package objects

import (
    "github.com/redhat-openstack/ironic/pkg/version"
)

// PortType is the wire name of the port object.
const PortType = "Port"

func PortSpec() *TypeSpec {
    v := version.MustParse
    return &TypeSpec{
        Name:   PortType,
        Latest: v("1.5"),
        Fields: map[string]version.Version{
            "uuid":                  v("1.0"),
            "node_uuid":             v("1.0"),
            "address":               v("1.0"),
            "extra":                 v("1.1"),
            "local_link_connection": v("1.3"),
            "pxe_enabled":           v("1.4"),
            "internal_info":         v("1.5"),
        },
        Actions: map[string]ActionFunc{
            "set_address": portSetAddress,
        },
    }
}

// NewPort builds a port object at the latest version.
func NewPort(r *Registry, uuid, nodeUUID, address string) (*Object, error) {
    return r.New(PortType, map[string]any{
        "uuid":        uuid,
        "node_uuid":   nodeUUID,
        "address":     address,
        "extra":       map[string]any{},
        "pxe_enabled": true,
    })
}

func portSetAddress(obj *Object, args []any, kwargs map[string]any) (any, map[string]any, error) {
    addr, _ := kwargs["address"].(string)
    if addr == "" && len(args) > 0 { addr, _ = args[0].(string) }
    changed := map[string]any{"address": addr}
    obj.Data["address"] = addr
    return addr, changed, nil
}
