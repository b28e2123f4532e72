package columnar

import (
	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
)

// Position is the primary vertex of an event
type Position struct {
	X, Y, Z float32
}

// Interaction is one energy deposit along a particle track
type Interaction struct {
	X, Y, Z float32
	Edep    float32 // deposited energy
	Type    uint16  // process type code
}

// ChannelCounts maps a channel index to its photon count. Absent channels
// have count zero.
type ChannelCounts map[int]uint32

// DenseCounts holds one count per channel, indexed by channel.
type DenseCounts []uint32

// EventRecord is one row of an event file.
type EventRecord struct {
	Position     Position
	Counts       ChannelCounts
	Interactions []Interaction
}

// Dense converts c into a vector of n counts. It fails if c names a channel
// outside [0, n).
func (c ChannelCounts) Dense(n int) (DenseCounts, error) {
	d := make(DenseCounts, n)
	if err := c.denseInto(d); err != nil {
		return nil, err
	}
	return d, nil
}

// denseInto overwrites dst with c. dst is left unspecified on error.
func (c ChannelCounts) denseInto(dst DenseCounts) error {
	for i := range dst {
		dst[i] = 0
	}
	for ch, v := range c {
		if ch < 0 || ch >= len(dst) {
			return crystalerrors.Newf(crystalerrors.ErrorTypeValidation,
				"channel index %d out of range [0, %d)", ch, len(dst)).
				WithDetail("channel", ch).
				WithDetail("channels", len(dst))
		}
		dst[ch] = v
	}
	return nil
}

// Counts converts d into a map holding every channel, zeros included.
func (d DenseCounts) Counts() ChannelCounts {
	c := make(ChannelCounts, len(d))
	for i, v := range d {
		c[i] = v
	}
	return c
}

// Densify returns a copy of e whose counts hold every channel in [0, n).
// Interactions are normalized to a non-nil slice when withInteractions is
// set and dropped otherwise. This is the form ReadAll returns.
func Densify(e EventRecord, n int, withInteractions bool) (EventRecord, error) {
	d, err := e.Counts.Dense(n)
	if err != nil {
		return EventRecord{}, err
	}
	out := EventRecord{Position: e.Position, Counts: d.Counts()}
	if withInteractions {
		out.Interactions = make([]Interaction, len(e.Interactions))
		copy(out.Interactions, e.Interactions)
	}
	return out, nil
}
