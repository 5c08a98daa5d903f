package rpc

import (
    "errors"
    "testing"

    "github.com/redhat-openstack/ironic/pkg/memkv"
    "github.com/redhat-openstack/ironic/pkg/objects"
    "github.com/redhat-openstack/ironic/pkg/registry"
)

func testNode(t *testing.T, driver string) *objects.Object {
    t.Helper()
    node, err := objects.NewNode(objects.DefaultRegistry(), "1be26c0b-03f2-4d2e-ae87-c02d7f33c123", driver)
    if err != nil { t.Fatalf("new node: %v", err) }
    return node
}

func newTestResolver() (*Resolver, *registry.Store) {
    reg := registry.NewStore(memkv.New(memkv.Options{}), 0)
    return NewResolver(reg, "fake-topic", nil), reg
}

func TestTopicForKnownDriver(t *testing.T) {
    r, reg := newTestResolver()
    if err := reg.Register("fake-host", []string{"fake-driver"}); err != nil {
        t.Fatalf("register: %v", err)
    }
    topic, err := r.TopicForNode(testNode(t, "fake-driver"))
    if err != nil { t.Fatalf("resolve: %v", err) }
    if topic != "fake-topic.fake-host" {
        t.Fatalf("want fake-topic.fake-host, got %q", topic)
    }
}

func TestTopicForUnknownDriver(t *testing.T) {
    r, reg := newTestResolver()
    if err := reg.Register("fake-host", []string{"other-driver"}); err != nil {
        t.Fatalf("register: %v", err)
    }
    _, err := r.TopicForNode(testNode(t, "fake-driver"))
    var nvh *NoValidHostError
    if !errors.As(err, &nvh) {
        t.Fatalf("want NoValidHostError, got %v", err)
    }
    if nvh.Driver != "fake-driver" {
        t.Fatalf("error should carry the driver: %+v", nvh)
    }
}

func TestTopicForNodeDoesNotCache(t *testing.T) {
    r, reg := newTestResolver()
    node := testNode(t, "fake-driver")

    var nvh *NoValidHostError
    if _, err := r.TopicForNode(node); !errors.As(err, &nvh) {
        t.Fatalf("want NoValidHostError before registration, got %v", err)
    }
    if err := reg.Register("fake-host", []string{"fake-driver"}); err != nil {
        t.Fatalf("register: %v", err)
    }
    // the very next resolution must see the registration
    topic, err := r.TopicForNode(node)
    if err != nil { t.Fatalf("resolve after register: %v", err) }
    if topic != "fake-topic.fake-host" {
        t.Fatalf("want fake-topic.fake-host, got %q", topic)
    }
}

func TestTopicForDriverKnown(t *testing.T) {
    r, reg := newTestResolver()
    _ = reg.Register("fake-host", []string{"fake-driver"})
    topic, err := r.TopicForDriver("fake-driver")
    if err != nil { t.Fatalf("resolve: %v", err) }
    if topic != "fake-topic.fake-host" {
        t.Fatalf("want fake-topic.fake-host, got %q", topic)
    }
}

func TestTopicForDriverUnknown(t *testing.T) {
    r, reg := newTestResolver()
    _ = reg.Register("fake-host", []string{"other-driver"})
    _, err := r.TopicForDriver("fake-driver")
    var dnf *DriverNotFoundError
    if !errors.As(err, &dnf) {
        t.Fatalf("want DriverNotFoundError, got %v", err)
    }
}

func TestTopicForDriverDoesNotCache(t *testing.T) {
    r, reg := newTestResolver()
    var dnf *DriverNotFoundError
    if _, err := r.TopicForDriver("fake-driver"); !errors.As(err, &dnf) {
        t.Fatalf("want DriverNotFoundError before registration, got %v", err)
    }
    _ = reg.Register("fake-host", []string{"fake-driver"})
    topic, err := r.TopicForDriver("fake-driver")
    if err != nil { t.Fatalf("resolve after register: %v", err) }
    if topic != "fake-topic.fake-host" {
        t.Fatalf("want fake-topic.fake-host, got %q", topic)
    }
}

func TestResolutionIsDeterministic(t *testing.T) {
    r, reg := newTestResolver()
    _ = reg.Register("b-host", []string{"fake-driver"})
    _ = reg.Register("a-host", []string{"fake-driver"})
    node := testNode(t, "fake-driver")
    t1, err := r.TopicForNode(node)
    if err != nil { t.Fatalf("resolve: %v", err) }
    t2, err := r.TopicForNode(node)
    if err != nil { t.Fatalf("resolve: %v", err) }
    if t1 != t2 {
        t.Fatalf("same registry state must resolve identically: %q vs %q", t1, t2)
    }
    if t1 != "fake-topic.a-host" {
        t.Fatalf("default selector picks the first sorted host, got %q", t1)
    }
}

func TestCustomSelector(t *testing.T) {
    reg := registry.NewStore(memkv.New(memkv.Options{}), 0)
    _ = reg.Register("a-host", []string{"fake-driver"})
    _ = reg.Register("b-host", []string{"fake-driver"})
    last := func(hosts []string, _ string) string { return hosts[len(hosts)-1] }
    r := NewResolver(reg, "fake-topic", last)
    topic, err := r.TopicForDriver("fake-driver")
    if err != nil { t.Fatalf("resolve: %v", err) }
    if topic != "fake-topic.b-host" {
        t.Fatalf("selector not honored: %q", topic)
    }
}
