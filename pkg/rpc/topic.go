package rpc

import (
    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/version"
)

// Topic is an opaque routing key on the message bus: either the shared base
// topic or `base.hostname`, which pins the request to one conductor.
type Topic string

// Target is the routing decision for a single call: where it goes and at
// which API version. Built fresh per call, never cached, so registry churn
// takes effect immediately.
type Target struct {
    Topic   Topic
    Version version.Version
}

// Registry is the conductor lookup the resolver depends on. It is injected,
// never a package-level singleton, so tests can substitute an in-memory fake.
type Registry interface {
    IsAlive(hostname string) bool
    HostsForDriver(driver string) []string
}

// Selector picks one host among the live candidates for a driver. hosts is
// non-empty and sorted; affinity is the node UUID for node-routed lookups
// (empty for driver-routed ones), so sticky strategies have something to
// hash. The default is FirstHost.
type Selector func(hosts []string, affinity string) string

// FirstHost deterministically picks the first candidate in sorted order.
func FirstHost(hosts []string, _ string) string { return hosts[0] }

// Resolver turns "I need driver D" or "I need the owner of node N" into a
// pinned Topic. Both entry points hit the registry on every call.
type Resolver struct {
    reg  Registry
    base Topic
    sel  Selector
}

func NewResolver(reg Registry, base Topic, sel Selector) *Resolver {
    if sel == nil { sel = FirstHost }
    return &Resolver{reg: reg, base: base, sel: sel}
}

// BaseTopic returns the unpinned shared topic.
func (r *Resolver) BaseTopic() Topic { return r.base }

func (r *Resolver) pin(hostname string) Topic { return r.base + "." + Topic(hostname) }

// TopicForNode resolves the conductor that can service node's driver.
// Fails with NoValidHostError when no live conductor advertises it.
func (r *Resolver) TopicForNode(node *objects.Object) (Topic, error) {
    driver, err := objects.NodeDriver(node)
    if err != nil { return "", err }
    uuid, _ := node.Field("uuid").(string)
    hosts := r.reg.HostsForDriver(driver)
    if len(hosts) == 0 {
        return "", &NoValidHostError{NodeUUID: uuid, Driver: driver}
    }
    return r.pin(r.sel(hosts, uuid)), nil
}

// TopicForDriver resolves a conductor for a bare driver name. Fails with
// DriverNotFoundError when no live conductor advertises it.
func (r *Resolver) TopicForDriver(driver string) (Topic, error) {
    hosts := r.reg.HostsForDriver(driver)
    if len(hosts) == 0 {
        return "", &DriverNotFoundError{Driver: driver}
    }
    return r.pin(r.sel(hosts, "")), nil
}
