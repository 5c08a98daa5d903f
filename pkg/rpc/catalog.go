package rpc

import (
    "github.com/redhat-openstack/ironic/pkg/version"
)

// APIVersion is the newest RPC API version this process speaks. Bump the
// minor every time a method is added or a payload grows a field, and record
// the change in the catalog below; never reshape an existing version.
var APIVersion = version.Version{Major: 1, Minor: 31}

// Kind says whether an operation blocks for a reply.
type Kind int

const (
    // KindCall blocks until the handler's return value or error arrives.
    KindCall Kind = iota
    // KindCast enqueues and returns immediately; workflow triggers are casts
    // because the caller polls the node state machine instead of blocking.
    KindCast
)

// MethodSpec declares one remotely-invocable operation: the minimum API
// version that carries it, its call/cast semantics, and payload fields that
// were introduced after Min (keyed by field name). Specs are immutable.
type MethodSpec struct {
    Name     string
    Min      version.Version
    Kind     Kind
    // Optional maps payload keys to the version that introduced them. A key
    // is omitted entirely (never sent as null) when the negotiated version
    // predates it.
    Optional map[string]version.Version
}

// Catalog is the closed, enumerated set of operations. Populated once at
// startup, read-only afterwards.
type Catalog struct {
    methods map[string]MethodSpec
}

func (c *Catalog) Lookup(name string) (MethodSpec, bool) {
    s, ok := c.methods[name]
    return s, ok
}

// Methods returns the operation names (for the serving side to assert its
// handler coverage).
func (c *Catalog) Methods() []string {
    out := make([]string, 0, len(c.methods))
    for name := range c.methods { out = append(out, name) }
    return out
}

// Shape reduces payload to the fields the negotiated version understands:
// pure, no network, unit-testable on its own. Keys not listed as optional
// are part of the method's base shape and pass through.
func (c *Catalog) Shape(method string, payload map[string]any, v version.Version) map[string]any {
    spec, ok := c.methods[method]
    if !ok || len(spec.Optional) == 0 { return payload }
    out := make(map[string]any, len(payload))
    for k, val := range payload {
        if at, opt := spec.Optional[k]; opt && at.Compare(v) > 0 {
            continue
        }
        out[k] = val
    }
    return out
}

// DefaultCatalog is the conductor manager's method table.
func DefaultCatalog() *Catalog {
    v := version.MustParse
    specs := []MethodSpec{
        {Name: "update_node", Min: v("1.1"), Kind: KindCall},
        {Name: "change_node_power_state", Min: v("1.6"), Kind: KindCall},
        {Name: "vendor_passthru", Min: v("1.14"), Kind: KindCall,
            Optional: map[string]version.Version{"http_method": v("1.20")}},
        {Name: "driver_vendor_passthru", Min: v("1.14"), Kind: KindCall,
            Optional: map[string]version.Version{"http_method": v("1.20")}},
        {Name: "do_node_deploy", Min: v("1.6"), Kind: KindCast,
            Optional: map[string]version.Version{"rebuild": v("1.15"), "configdrive": v("1.22")}},
        {Name: "do_node_tear_down", Min: v("1.6"), Kind: KindCast},
        {Name: "validate_driver_interfaces", Min: v("1.5"), Kind: KindCall},
        {Name: "destroy_node", Min: v("1.9"), Kind: KindCall},
        {Name: "get_console_information", Min: v("1.11"), Kind: KindCall},
        {Name: "set_console_mode", Min: v("1.11"), Kind: KindCall},
        {Name: "update_port", Min: v("1.13"), Kind: KindCall},
        {Name: "get_driver_properties", Min: v("1.16"), Kind: KindCall},
        {Name: "set_boot_device", Min: v("1.17"), Kind: KindCast},
        {Name: "get_boot_device", Min: v("1.17"), Kind: KindCall},
        {Name: "get_supported_boot_devices", Min: v("1.17"), Kind: KindCall},
        {Name: "get_node_vendor_passthru_methods", Min: v("1.21"), Kind: KindCall},
        {Name: "get_driver_vendor_passthru_methods", Min: v("1.21"), Kind: KindCall},
        {Name: "inspect_hardware", Min: v("1.24"), Kind: KindCall},
        {Name: "continue_node_clean", Min: v("1.27"), Kind: KindCast},
        {Name: "get_raid_logical_disk_properties", Min: v("1.30"), Kind: KindCall},
        {Name: "set_target_raid_config", Min: v("1.30"), Kind: KindCall},
        {Name: "object_action", Min: v("1.31"), Kind: KindCall},
        {Name: "object_class_action_versions", Min: v("1.31"), Kind: KindCall},
        {Name: "object_backport_versions", Min: v("1.31"), Kind: KindCall},
    }
    c := &Catalog{methods: make(map[string]MethodSpec, len(specs))}
    for _, s := range specs { c.methods[s.Name] = s }
    return c
}
