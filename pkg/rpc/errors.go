package rpc

import (
    "fmt"

    "github.com/redhat-openstack/ironic/pkg/version"
)

// The dispatch layer surfaces every failure as one of the typed errors below
// so callers can branch on kind with errors.As. Nothing is coalesced or
// retried here; retry safety belongs to the caller.

// NoValidHostError means the node's assigned driver has no live, capable
// conductor right now. Node-scoped callers typically re-resolve later.
type NoValidHostError struct {
    NodeUUID string
    Driver   string
}

func (e *NoValidHostError) Error() string {
    return fmt.Sprintf("no valid host: no live conductor supports driver %q for node %s", e.Driver, e.NodeUUID)
}

// DriverNotFoundError means a driver-scoped lookup found no live, capable
// conductor. Same underlying cause as NoValidHostError, different caller
// intent: this one usually indicates a configuration problem.
type DriverNotFoundError struct {
    Driver string
}

func (e *DriverNotFoundError) Error() string {
    return fmt.Sprintf("driver %q not found on any live conductor", e.Driver)
}

// VersionMismatchError means the operation has no representation at the
// negotiated version. Fatal for this call; never retried.
type VersionMismatchError struct {
    Method     string
    Required   version.Version
    Negotiated version.Version
}

func (e *VersionMismatchError) Error() string {
    return fmt.Sprintf("method %s requires RPC API %s but the negotiated version is %s", e.Method, e.Required, e.Negotiated)
}

// RemoteExecutionError carries an error raised by the worker-side handler,
// propagated to the caller unchanged.
type RemoteExecutionError struct {
    Method string
    Remote string
}

func (e *RemoteExecutionError) Error() string {
    return fmt.Sprintf("remote %s failed: %s", e.Method, e.Remote)
}

// TransportError wraps unreachable/timeout failures from the bus.
type TransportError struct {
    Op  string
    Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
