package objects

import (
    "testing"

    "github.com/redhat-openstack/ironic/pkg/codec"
    "github.com/redhat-openstack/ironic/pkg/version"
)

func TestNewRejectsUnknownField(t *testing.T) {
    r := DefaultRegistry()
    if _, err := r.New(NodeType, map[string]any{"bogus": 1}); err == nil {
        t.Fatalf("expected error for unknown field")
    }
    if _, err := r.New("Widget", nil); err == nil {
        t.Fatalf("expected error for unknown type")
    }
}

func TestBackportDropsNewerFields(t *testing.T) {
    r := DefaultRegistry()
    node, err := NewNode(r, "uuid-1", "fake-driver")
    if err != nil { t.Fatalf("new node: %v", err) }
    node.Data["maintenance_reason"] = "scheduled"
    node.Data["target_raid_config"] = map[string]any{"raid": "1"}

    out, err := r.Backport(node, version.MustParse("1.4"))
    if err != nil { t.Fatalf("backport: %v", err) }
    if out.Version != "1.4" {
        t.Fatalf("version not rewritten: %s", out.Version)
    }
    spec, _ := r.Get(NodeType)
    for f := range out.Data {
        at, known := spec.Fields[f]
        if !known {
            t.Fatalf("unknown field %q survived backport", f)
        }
        if at.Compare(version.MustParse("1.4")) > 0 {
            t.Fatalf("field %q (introduced %s) must not appear at 1.4", f, at)
        }
    }
    if _, ok := out.Data["maintenance_reason"]; ok {
        t.Fatalf("maintenance_reason is a 1.9 field")
    }
    if out.Data["driver"] != "fake-driver" {
        t.Fatalf("baseline field lost: %#v", out.Data)
    }
    // the source object is untouched
    if node.Version != spec.Latest.String() {
        t.Fatalf("backport must copy, not mutate")
    }
}

func TestBackportRoundTripUnderOldReader(t *testing.T) {
    // a reader that only understands 1.1 must see nothing newer
    r := DefaultRegistry()
    node, _ := NewNode(r, "uuid-1", "fake-driver")
    out, err := r.Backport(node, version.MustParse("1.1"))
    if err != nil { t.Fatalf("backport: %v", err) }

    c := codec.CBOR()
    b, err := c.Marshal(out)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var decoded Object
    if err := c.Unmarshal(b, &decoded); err != nil { t.Fatalf("unmarshal: %v", err) }
    if decoded.Version != "1.1" || decoded.Type != NodeType {
        t.Fatalf("decoded header mismatch: %+v", decoded)
    }
    if _, ok := decoded.Data["maintenance"]; ok {
        t.Fatalf("maintenance is a 1.2 field, reader at 1.1 must not see it")
    }
}

func TestBackportRejectsForwardOrUnknownVersion(t *testing.T) {
    r := DefaultRegistry()
    port, _ := NewPort(r, "p-1", "n-1", "52:54:00:00:00:01")
    old, err := r.Backport(port, version.MustParse("1.3"))
    if err != nil { t.Fatalf("backport: %v", err) }
    if _, err := r.Backport(old, version.MustParse("1.5")); err == nil {
        t.Fatalf("backporting forward must fail")
    }
    if _, err := r.Backport(port, version.MustParse("2.0")); err == nil {
        t.Fatalf("unknown major line must fail")
    }
}

func TestNodeActions(t *testing.T) {
    r := DefaultRegistry()
    spec, _ := r.Get(NodeType)
    node, _ := NewNode(r, "uuid-1", "fake-driver")

    res, changed, err := spec.Actions["set_power_state"](node, nil, map[string]any{"target": "power on"})
    if err != nil { t.Fatalf("action: %v", err) }
    if res.(string) != "power on" || node.Data["power_state"] != "power on" {
        t.Fatalf("action did not apply: %v %v", res, node.Data["power_state"])
    }
    if _, ok := changed["power_state"]; !ok {
        t.Fatalf("changed set missing power_state")
    }
    if _, _, err := spec.Actions["set_power_state"](node, nil, nil); err == nil {
        t.Fatalf("missing target must fail")
    }
}

func TestNodeDriver(t *testing.T) {
    r := DefaultRegistry()
    node, _ := NewNode(r, "uuid-1", "fake-driver")
    d, err := NodeDriver(node)
    if err != nil || d != "fake-driver" {
        t.Fatalf("NodeDriver: %q %v", d, err)
    }
    port, _ := NewPort(r, "p-1", "n-1", "52:54:00:00:00:01")
    if _, err := NodeDriver(port); err == nil {
        t.Fatalf("port is not a node")
    }
}
