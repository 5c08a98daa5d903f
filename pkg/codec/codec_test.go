package codec

import (
    "testing"
)

func TestJSONCodec(t *testing.T) {
    c := JSON()
    in := map[string]any{"a": 1, "b": "x"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out map[string]any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out["a"].(float64) != 1 || out["b"].(string) != "x" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

func TestCBORCodec(t *testing.T) {
    c := CBOR()
    in := map[string]any{"n": 42, "s": "x"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out map[string]any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out["s"].(string) != "x" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
    // canonical encoding: same document, same bytes
    b2, _ := c.Marshal(map[string]any{"s": "x", "n": 42})
    if string(b) != string(b2) {
        t.Fatalf("canonical encoding should be key-order independent")
    }
}

func TestRegistryLookup(t *testing.T) {
    r := NewRegistry()
    if r.Get("application/cbor") == nil || r.Get("application/json") == nil {
        t.Fatalf("built-in codecs missing")
    }
    if r.Get("application/x-unknown") != nil {
        t.Fatalf("unknown content type should return nil")
    }
}
