// Package segmentation labels connected components of a binary mask,
// removes components below a size threshold and exposes each surviving
// component as an immutable Region tied to the labeling pass that produced it.
package segmentation

import (
	"fmt"
	"strings"

	"cellmesh/internal/models"
)

// Connectivity selects which neighbours are considered adjacent.
// The numeric values follow the usual 1..ndim convention: the maximum
// number of coordinates that may differ between two neighbours.
type Connectivity int

const (
	// Face joins voxels sharing a face (6 neighbours).
	Face Connectivity = 1
	// Edge joins voxels sharing a face or an edge (18 neighbours).
	Edge Connectivity = 2
	// Full joins voxels sharing a face, edge or corner (26 neighbours).
	Full Connectivity = 3
)

// ParseConnectivity accepts "6", "18", "26", "face", "edge", "full" or "1".."3".
func ParseConnectivity(s string) (Connectivity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "6", "1", "face":
		return Face, nil
	case "18", "2", "edge":
		return Edge, nil
	case "26", "3", "full", "":
		return Full, nil
	}
	return 0, fmt.Errorf("unknown connectivity %q (must be 6, 18 or 26)", s)
}

// Valid reports whether c is one of the defined connectivities.
func (c Connectivity) Valid() bool {
	return c >= Face && c <= Full
}

// Neighbors returns the number of adjacent voxels under c.
func (c Connectivity) Neighbors() int {
	return len(c.Offsets())
}

func (c Connectivity) String() string {
	switch c {
	case Face:
		return "6"
	case Edge:
		return "18"
	case Full:
		return "26"
	}
	return fmt.Sprintf("Connectivity(%d)", int(c))
}

// MarshalText encodes the connectivity as its neighbour count.
func (c Connectivity) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid connectivity %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses any form accepted by ParseConnectivity.
func (c *Connectivity) UnmarshalText(text []byte) error {
	parsed, err := ParseConnectivity(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Offsets lists the neighbour displacements allowed by c.
func (c Connectivity) Offsets() []models.Coord {
	var offsets []models.Coord
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			for dd := -1; dd <= 1; dd++ {
				changed := abs(dr) + abs(dc) + abs(dd)
				if changed == 0 || changed > int(c) {
					continue
				}
				offsets = append(offsets, models.Coord{dr, dc, dd})
			}
		}
	}
	return offsets
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
