// Package schema derives the on-disk column layout of an event file from
// the run configuration.
//
// The layout is a pure function of the channel count and the interaction
// flag:
//
//	x, y, z                 float32
//	interactions            list<struct<x, y, z, edep: float32, type: uint16>>   (optional)
//	sipm_0 ... sipm_{N-1}   uint32
//
// Each detector channel gets its own scalar column; column sipm_i always
// holds the count of physical channel i.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Column names
const (
	ColumnX            = "x"
	ColumnY            = "y"
	ColumnZ            = "z"
	ColumnInteractions = "interactions"

	// ChannelPrefix prefixes every per-channel count column.
	ChannelPrefix = "sipm_"
)

// Interaction struct field names
const (
	FieldX    = "x"
	FieldY    = "y"
	FieldZ    = "z"
	FieldEdep = "edep"
	FieldType = "type"
)

// PositionColumns is the number of leading position columns.
const PositionColumns = 3

// InteractionType is the struct type of one interaction entry.
var InteractionType = arrow.StructOf(
	arrow.Field{Name: FieldX, Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: FieldY, Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: FieldZ, Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: FieldEdep, Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: FieldType, Type: arrow.PrimitiveTypes.Uint16},
)

// CountType is the physical type of a channel count.
var CountType = arrow.PrimitiveTypes.Uint32

// Build returns the schema for nChannels channels, with or without the
// interactions column. It panics if nChannels is negative; callers validate
// the channel count before building a writer or reader.
func Build(nChannels int, withInteractions bool) *arrow.Schema {
	return BuildWithMetadata(nChannels, withInteractions, nil)
}

// BuildWithMetadata is Build with file-level key/value metadata attached.
func BuildWithMetadata(nChannels int, withInteractions bool, md *arrow.Metadata) *arrow.Schema {
	if nChannels < 0 {
		panic(fmt.Sprintf("schema: negative channel count %d", nChannels))
	}

	n := PositionColumns + nChannels
	if withInteractions {
		n++
	}
	fields := make([]arrow.Field, 0, n)

	fields = append(fields,
		arrow.Field{Name: ColumnX, Type: arrow.PrimitiveTypes.Float32},
		arrow.Field{Name: ColumnY, Type: arrow.PrimitiveTypes.Float32},
		arrow.Field{Name: ColumnZ, Type: arrow.PrimitiveTypes.Float32},
	)

	if withInteractions {
		fields = append(fields, arrow.Field{
			Name: ColumnInteractions,
			Type: arrow.ListOfNonNullable(InteractionType),
		})
	}

	for i := 0; i < nChannels; i++ {
		fields = append(fields, arrow.Field{Name: ChannelColumn(i), Type: CountType})
	}

	return arrow.NewSchema(fields, md)
}

// ChannelColumn returns the column name holding channel i's count.
func ChannelColumn(i int) string {
	return ChannelPrefix + strconv.Itoa(i)
}

// ChannelIndex parses a channel column name back into its index.
func ChannelIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, ChannelPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || strconv.Itoa(i) != rest {
		return 0, false
	}
	return i, true
}

// Layout describes where each logical part of an event lives in a schema.
type Layout struct {
	Interactions int // column index of the interactions list, -1 if absent
	FirstChannel int // column index of sipm_0
	Channels     int
}

// LayoutOf returns the column layout for the given configuration.
func LayoutOf(nChannels int, withInteractions bool) Layout {
	l := Layout{Interactions: -1, FirstChannel: PositionColumns, Channels: nChannels}
	if withInteractions {
		l.Interactions = PositionColumns
		l.FirstChannel++
	}
	return l
}

// ChannelColumnIndex returns the column index of channel i.
func (l Layout) ChannelColumnIndex(i int) int {
	return l.FirstChannel + i
}
