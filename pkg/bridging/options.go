// Package bridging joins disconnected regions of a mask by drawing voxel
// lines between their nearest boundary points and then closing the
// cavities those lines enclose.
package bridging

import (
	"fmt"
	"strings"
)

// TiePolicy decides which nearest points produce a correspondence when
// several are at exactly the same distance.
type TiePolicy int

const (
	// AllTies keeps every point at the minimum distance.
	AllTies TiePolicy = iota
	// FirstMatch keeps the tied point with the lowest boundary index.
	FirstMatch
	// Random keeps one tied point chosen by the engine's seeded generator.
	Random
)

// Strategy selects how nearest points are searched.
type Strategy int

const (
	// Auto uses the distance matrix unless it would exceed MaxMatrixElements.
	Auto Strategy = iota
	// Matrix builds the full pairwise squared-distance matrix.
	Matrix
	// KDTree indexes the source boundary in a k-d tree.
	KDTree
)

// Policy decides which region pairs are bridged when more than two
// regions survive filtering.
type Policy int

const (
	// TwoLargest bridges only the two regions with the most voxels.
	TwoLargest Policy = iota
	// Chain starts at the largest region and repeatedly bridges to the
	// nearest unvisited region by centroid distance.
	Chain
	// SpanningTree bridges the edges of a minimum spanning tree over
	// region centroids.
	SpanningTree
	// AllPairs bridges every pair of regions.
	AllPairs
)

var (
	tieNames      = []string{"all-ties", "first-match", "random"}
	strategyNames = []string{"auto", "matrix", "kdtree"}
	policyNames   = []string{"two-largest", "chain", "spanning-tree", "all-pairs"}
)

func parseName(kind, s string, names []string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for i, n := range names {
		if s == n || s == strings.ReplaceAll(n, "-", "") {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (must be one of %s)", kind, s, strings.Join(names, ", "))
}

func formatName(kind string, v int, names []string) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

// ParseTiePolicy accepts "all-ties", "first-match" or "random".
func ParseTiePolicy(s string) (TiePolicy, error) {
	v, err := parseName("tie policy", s, tieNames)
	return TiePolicy(v), err
}

func (t TiePolicy) String() string { return formatName("TiePolicy", int(t), tieNames) }

// MarshalText implements encoding.TextMarshaler.
func (t TiePolicy) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TiePolicy) UnmarshalText(text []byte) error {
	v, err := ParseTiePolicy(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseStrategy accepts "auto", "matrix" or "kdtree".
func ParseStrategy(s string) (Strategy, error) {
	v, err := parseName("strategy", s, strategyNames)
	return Strategy(v), err
}

func (s Strategy) String() string { return formatName("Strategy", int(s), strategyNames) }

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParsePolicy accepts "two-largest", "chain", "spanning-tree" or "all-pairs".
func ParsePolicy(s string) (Policy, error) {
	v, err := parseName("region policy", s, policyNames)
	return Policy(v), err
}

func (p Policy) String() string { return formatName("Policy", int(p), policyNames) }

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
