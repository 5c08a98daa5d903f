package version

import "testing"

func TestParse(t *testing.T) {
    v, err := Parse("1.17")
    if err != nil { t.Fatalf("parse: %v", err) }
    if v.Major != 1 || v.Minor != 17 {
        t.Fatalf("want 1.17, got %v", v)
    }
    if v.String() != "1.17" {
        t.Fatalf("string roundtrip: %q", v.String())
    }
    for _, bad := range []string{"", "1", "1.", ".5", "a.b", "1.-2", "-1.2"} {
        if _, err := Parse(bad); err == nil {
            t.Fatalf("expected error for %q", bad)
        }
    }
}

func TestCompare(t *testing.T) {
    if !MustParse("1.5").Less(MustParse("1.17")) {
        t.Fatalf("1.5 should sort below 1.17")
    }
    if !MustParse("2.0").AtLeast(MustParse("1.31")) {
        t.Fatalf("2.0 should sort above 1.31")
    }
    if MustParse("1.31").Compare(MustParse("1.31")) != 0 {
        t.Fatalf("equal versions must compare 0")
    }
}

func TestCanSend(t *testing.T) {
    cases := []struct {
        requested, peer string
        ok              bool
    }{
        {"1.17", "1.31", true},
        {"1.17", "1.17", true},
        {"1.17", "1.16", false},
        {"1.0", "2.0", false}, // major line mismatch is never compatible
        {"2.1", "1.31", false},
    }
    for _, c := range cases {
        if got := CanSend(MustParse(c.requested), MustParse(c.peer)); got != c.ok {
            t.Fatalf("CanSend(%s, %s) = %v, want %v", c.requested, c.peer, got, c.ok)
        }
    }
}
