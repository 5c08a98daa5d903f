// Package rpc is the dispatch layer between the API process and the
// conductor fleet: topic resolution against the registry, method-level
// version gating, and call/cast routing over the message bus.
package rpc

import (
    "context"
    "fmt"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/version"
)

// Bound is a transport client pinned to one topic and one wire version.
type Bound interface {
    // Call blocks until the handler's reply (decoded into reply when
    // non-nil), a propagated remote error, or ctx expiry.
    Call(ctx context.Context, method string, payload map[string]any, reply any) error
    // Cast enqueues and returns; the handler's outcome is never reported.
    Cast(ctx context.Context, method string, payload map[string]any) error
}

// Transport is the message-bus primitive the dispatcher consumes. The
// dispatcher never opens connections or encodes frames itself.
type Transport interface {
    Prepare(topic Topic, v version.Version) Bound
    // CanSendVersion reports whether the peer side accepts messages pinned
    // at v.
    CanSendVersion(v version.Version) bool
}

// ConductorAPI is the client side of the conductor RPC surface. It holds no
// per-call state: targets are computed fresh on every invocation, so it is
// safe for concurrent use without locking.
type ConductorAPI struct {
    transport Transport
    resolver  *Resolver
    catalog   *Catalog
}

func NewConductorAPI(t Transport, r *Resolver) *ConductorAPI {
    return &ConductorAPI{transport: t, resolver: r, catalog: DefaultCatalog()}
}

// TopicFor resolves the pinned topic for a node (see Resolver.TopicForNode).
func (a *ConductorAPI) TopicFor(node *objects.Object) (Topic, error) {
    return a.resolver.TopicForNode(node)
}

// TopicForDriver resolves the pinned topic for a driver name.
func (a *ConductorAPI) TopicForDriver(driver string) (Topic, error) {
    return a.resolver.TopicForDriver(driver)
}

// negotiate finds the highest version in the local major line that the peer
// accepts. Re-evaluated per call: the peer set behind a topic changes during
// a rolling upgrade.
func (a *ConductorAPI) negotiate() (version.Version, bool) {
    for minor := APIVersion.Minor; minor >= 0; minor-- {
        v := version.Version{Major: APIVersion.Major, Minor: minor}
        if a.transport.CanSendVersion(v) { return v, true }
    }
    return version.Version{}, false
}

// invoke builds the target, gates the version, shapes the payload and hands
// off to the transport. Errors come back as the typed kinds in errors.go.
func (a *ConductorAPI) invoke(ctx context.Context, topic Topic, method string, payload map[string]any, reply any) error {
    spec, ok := a.catalog.Lookup(method)
    if !ok {
        return fmt.Errorf("rpc: method %q not in catalog", method)
    }
    negotiated, ok := a.negotiate()
    if !ok || negotiated.Less(spec.Min) {
        return &VersionMismatchError{Method: method, Required: spec.Min, Negotiated: negotiated}
    }
    if topic == "" { topic = a.resolver.BaseTopic() }
    payload = a.catalog.Shape(method, payload, negotiated)
    bound := a.transport.Prepare(topic, negotiated)
    zap.L().Debug("rpc dispatch",
        zap.String("method", method),
        zap.String("topic", string(topic)),
        zap.String("version", negotiated.String()),
        zap.Bool("cast", spec.Kind == KindCast))
    if spec.Kind == KindCast {
        return bound.Cast(ctx, method, payload)
    }
    return bound.Call(ctx, method, payload, reply)
}

// ---- node lifecycle ----

// UpdateNode persists changed node fields on the owning conductor and
// returns the authoritative copy.
func (a *ConductorAPI) UpdateNode(ctx context.Context, topic Topic, node *objects.Object) (*objects.Object, error) {
    var out objects.Object
    err := a.invoke(ctx, topic, "update_node", map[string]any{"node_obj": node}, &out)
    if err != nil { return nil, err }
    return &out, nil
}

// ChangeNodePowerState asks the owning conductor to drive the node to
// newState. Synchronous validation; the power action itself is driven by the
// conductor's state machine.
func (a *ConductorAPI) ChangeNodePowerState(ctx context.Context, topic Topic, nodeID, newState string) error {
    return a.invoke(ctx, topic, "change_node_power_state", map[string]any{
        "node_id":   nodeID,
        "new_state": newState,
    }, nil)
}

// DoNodeDeploy triggers a deployment workflow. Fire-and-forget: poll the
// node's provision state for progress.
func (a *ConductorAPI) DoNodeDeploy(ctx context.Context, topic Topic, nodeID string, rebuild bool, configdrive string) error {
    return a.invoke(ctx, topic, "do_node_deploy", map[string]any{
        "node_id":     nodeID,
        "rebuild":     rebuild,
        "configdrive": configdrive,
    }, nil)
}

// DoNodeTearDown triggers an undeploy workflow (fire-and-forget).
func (a *ConductorAPI) DoNodeTearDown(ctx context.Context, topic Topic, nodeID string) error {
    return a.invoke(ctx, topic, "do_node_tear_down", map[string]any{"node_id": nodeID}, nil)
}

// ContinueNodeClean resumes a paused cleaning workflow (fire-and-forget).
func (a *ConductorAPI) ContinueNodeClean(ctx context.Context, topic Topic, nodeID string) error {
    return a.invoke(ctx, topic, "continue_node_clean", map[string]any{"node_id": nodeID}, nil)
}

// ValidateDriverInterfaces checks all driver interfaces against the node and
// returns per-interface {result, reason} maps.
func (a *ConductorAPI) ValidateDriverInterfaces(ctx context.Context, topic Topic, nodeID string) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "validate_driver_interfaces", map[string]any{"node_id": nodeID}, &out)
    return out, err
}

// DestroyNode deletes the node on the owning conductor.
func (a *ConductorAPI) DestroyNode(ctx context.Context, topic Topic, nodeID string) error {
    return a.invoke(ctx, topic, "destroy_node", map[string]any{"node_id": nodeID}, nil)
}

// InspectHardware kicks hardware introspection on the node.
func (a *ConductorAPI) InspectHardware(ctx context.Context, topic Topic, nodeID string) error {
    return a.invoke(ctx, topic, "inspect_hardware", map[string]any{"node_id": nodeID}, nil)
}

// ---- console ----

func (a *ConductorAPI) GetConsoleInformation(ctx context.Context, topic Topic, nodeID string) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "get_console_information", map[string]any{"node_id": nodeID}, &out)
    return out, err
}

func (a *ConductorAPI) SetConsoleMode(ctx context.Context, topic Topic, nodeID string, enabled bool) error {
    return a.invoke(ctx, topic, "set_console_mode", map[string]any{
        "node_id": nodeID,
        "enabled": enabled,
    }, nil)
}

// ---- boot devices ----

// SetBootDevice pins the node's next boot device. Fire-and-forget; callers
// that must confirm read it back with GetBootDevice.
func (a *ConductorAPI) SetBootDevice(ctx context.Context, topic Topic, nodeID, device string, persistent bool) error {
    return a.invoke(ctx, topic, "set_boot_device", map[string]any{
        "node_id":    nodeID,
        "device":     device,
        "persistent": persistent,
    }, nil)
}

func (a *ConductorAPI) GetBootDevice(ctx context.Context, topic Topic, nodeID string) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "get_boot_device", map[string]any{"node_id": nodeID}, &out)
    return out, err
}

func (a *ConductorAPI) GetSupportedBootDevices(ctx context.Context, topic Topic, nodeID string) ([]string, error) {
    var out []string
    err := a.invoke(ctx, topic, "get_supported_boot_devices", map[string]any{"node_id": nodeID}, &out)
    return out, err
}

// ---- vendor passthru ----

func (a *ConductorAPI) VendorPassthru(ctx context.Context, topic Topic, nodeID, driverMethod, httpMethod string, info map[string]any) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "vendor_passthru", map[string]any{
        "node_id":       nodeID,
        "driver_method": driverMethod,
        "http_method":   httpMethod,
        "info":          info,
    }, &out)
    return out, err
}

func (a *ConductorAPI) DriverVendorPassthru(ctx context.Context, topic Topic, driverName, driverMethod, httpMethod string, info map[string]any) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "driver_vendor_passthru", map[string]any{
        "driver_name":   driverName,
        "driver_method": driverMethod,
        "http_method":   httpMethod,
        "info":          info,
    }, &out)
    return out, err
}

func (a *ConductorAPI) GetNodeVendorPassthruMethods(ctx context.Context, topic Topic, nodeID string) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "get_node_vendor_passthru_methods", map[string]any{"node_id": nodeID}, &out)
    return out, err
}

func (a *ConductorAPI) GetDriverVendorPassthruMethods(ctx context.Context, topic Topic, driverName string) (map[string]any, error) {
    var out map[string]any
    err := a.invoke(ctx, topic, "get_driver_vendor_passthru_methods", map[string]any{"driver_name": driverName}, &out)
    return out, err
}

// ---- driver and RAID properties ----

func (a *ConductorAPI) GetDriverProperties(ctx context.Context, topic Topic, driverName string) (map[string]string, error) {
    var out map[string]string
    err := a.invoke(ctx, topic, "get_driver_properties", map[string]any{"driver_name": driverName}, &out)
    return out, err
}

func (a *ConductorAPI) GetRaidLogicalDiskProperties(ctx context.Context, topic Topic, driverName string) (map[string]string, error) {
    var out map[string]string
    err := a.invoke(ctx, topic, "get_raid_logical_disk_properties", map[string]any{"driver_name": driverName}, &out)
    return out, err
}

func (a *ConductorAPI) SetTargetRaidConfig(ctx context.Context, topic Topic, nodeID string, target map[string]any) error {
    return a.invoke(ctx, topic, "set_target_raid_config", map[string]any{
        "node_id":            nodeID,
        "target_raid_config": target,
    }, nil)
}

// ---- ports ----

// UpdatePort persists changed port fields and returns the authoritative copy.
func (a *ConductorAPI) UpdatePort(ctx context.Context, topic Topic, port *objects.Object) (*objects.Object, error) {
    var out objects.Object
    err := a.invoke(ctx, topic, "update_port", map[string]any{"port_obj": port}, &out)
    if err != nil { return nil, err }
    return &out, nil
}

// ---- object bridge ----

// ObjectActionResult is the reply shape of object_action: the invocation
// result plus the fields the action changed, backported to the version the
// caller's object declared.
type ObjectActionResult struct {
    Result  any             `cbor:"result" json:"result"`
    Changes *objects.Object `cbor:"changes" json:"changes"`
}

// ObjectAction executes method on the authoritative (server-side) copy of
// objinst. Always a call: the caller needs both the result and the changed
// fields.
func (a *ConductorAPI) ObjectAction(ctx context.Context, topic Topic, objinst *objects.Object, objmethod string, args []any, kwargs map[string]any) (*ObjectActionResult, error) {
    var out ObjectActionResult
    err := a.invoke(ctx, topic, "object_action", map[string]any{
        "objinst":   objinst,
        "objmethod": objmethod,
        "args":      args,
        "kwargs":    kwargs,
    }, &out)
    if err != nil { return nil, err }
    return &out, nil
}

// ObjectClassActionVersions invokes a class-scoped action with no local
// instance; objectVersions maps each referenced type to the version the
// caller can decode.
func (a *ConductorAPI) ObjectClassActionVersions(ctx context.Context, topic Topic, objname, objmethod string, objectVersions map[string]string, args []any, kwargs map[string]any) (any, error) {
    var out any
    err := a.invoke(ctx, topic, "object_class_action_versions", map[string]any{
        "objname":         objname,
        "objmethod":       objmethod,
        "object_versions": objectVersions,
        "args":            args,
        "kwargs":          kwargs,
    }, &out)
    return out, err
}

// ObjectBackportVersions asks the remote side to downgrade objinst to the
// versions in objectVersions, for receivers holding an object newer than
// they can decode.
func (a *ConductorAPI) ObjectBackportVersions(ctx context.Context, topic Topic, objinst *objects.Object, objectVersions map[string]string) (*objects.Object, error) {
    var out objects.Object
    err := a.invoke(ctx, topic, "object_backport_versions", map[string]any{
        "objinst":         objinst,
        "object_versions": objectVersions,
    }, &out)
    if err != nil { return nil, err }
    return &out, nil
}
