// Package version holds the dotted major.minor version scheme shared by the
// RPC API and the versioned domain objects.
package version

import (
    "fmt"
    "strconv"
    "strings"
)

// Version is a major.minor pair, e.g. "1.17". The zero value is "0.0".
type Version struct {
    Major int
    Minor int
}

// Parse parses "major.minor". Both parts must be non-negative integers.
func Parse(s string) (Version, error) {
    i := strings.IndexByte(s, '.')
    if i <= 0 || i == len(s)-1 {
        return Version{}, fmt.Errorf("malformed version %q", s)
    }
    maj, err := strconv.Atoi(s[:i])
    if err != nil || maj < 0 {
        return Version{}, fmt.Errorf("malformed version %q", s)
    }
    min, err := strconv.Atoi(s[i+1:])
    if err != nil || min < 0 {
        return Version{}, fmt.Errorf("malformed version %q", s)
    }
    return Version{Major: maj, Minor: min}, nil
}

// MustParse is Parse for static tables; panics on malformed input.
func MustParse(s string) Version {
    v, err := Parse(s)
    if err != nil { panic(err) }
    return v
}

func (v Version) String() string { return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) }

// Compare returns -1, 0 or +1 ordering v against o.
func (v Version) Compare(o Version) int {
    if v.Major != o.Major {
        if v.Major < o.Major { return -1 }
        return 1
    }
    if v.Minor != o.Minor {
        if v.Minor < o.Minor { return -1 }
        return 1
    }
    return 0
}

func (v Version) Less(o Version) bool    { return v.Compare(o) < 0 }
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }

// CanSend reports whether a message pinned at `requested` can be consumed by
// a peer whose ceiling is `peer`: same major line, and the peer's minor is at
// least the requested minor.
func CanSend(requested, peer Version) bool {
    return requested.Major == peer.Major && requested.Minor <= peer.Minor
}
