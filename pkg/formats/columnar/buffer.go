package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/schema"
)

// rowBuffer accumulates rows in per-column Arrow builders until a flush
// moves them into a record.
//
// append validates and stages the whole event before touching a builder,
// so every builder holds the same number of rows after each call.
type rowBuffer struct {
	layout schema.Layout
	rb     *array.RecordBuilder

	x, y, z *array.Float32Builder

	// nil when interactions are disabled
	list              *array.ListBuilder
	item              *array.StructBuilder
	ix, iy, iz, iedep *array.Float32Builder
	itype             *array.Uint16Builder

	counts []*array.Uint32Builder

	staged DenseCounts
	rows   int
}

func newRowBuffer(mem memory.Allocator, sc *arrow.Schema, layout schema.Layout, capacity int) *rowBuffer {
	rb := array.NewRecordBuilder(mem, sc)
	rb.Reserve(capacity)

	b := &rowBuffer{
		layout: layout,
		rb:     rb,
		x:      rb.Field(0).(*array.Float32Builder),
		y:      rb.Field(1).(*array.Float32Builder),
		z:      rb.Field(2).(*array.Float32Builder),
		counts: make([]*array.Uint32Builder, layout.Channels),
		staged: make(DenseCounts, layout.Channels),
	}

	if layout.Interactions >= 0 {
		b.list = rb.Field(layout.Interactions).(*array.ListBuilder)
		b.item = b.list.ValueBuilder().(*array.StructBuilder)
		b.ix = b.item.FieldBuilder(0).(*array.Float32Builder)
		b.iy = b.item.FieldBuilder(1).(*array.Float32Builder)
		b.iz = b.item.FieldBuilder(2).(*array.Float32Builder)
		b.iedep = b.item.FieldBuilder(3).(*array.Float32Builder)
		b.itype = b.item.FieldBuilder(4).(*array.Uint16Builder)
	}

	for i := range b.counts {
		b.counts[i] = rb.Field(layout.ChannelColumnIndex(i)).(*array.Uint32Builder)
	}

	return b
}

// append adds e as one row. On error no builder has changed.
func (b *rowBuffer) append(e EventRecord) error {
	if b.list == nil && len(e.Interactions) > 0 {
		return crystalerrors.New(crystalerrors.ErrorTypeValidation,
			"event has interactions but the interactions column is disabled").
			WithDetail("interactions", len(e.Interactions))
	}
	if err := e.Counts.denseInto(b.staged); err != nil {
		return err
	}

	b.x.Append(e.Position.X)
	b.y.Append(e.Position.Y)
	b.z.Append(e.Position.Z)

	if b.list != nil {
		b.list.Append(true)
		for _, in := range e.Interactions {
			b.item.Append(true)
			b.ix.Append(in.X)
			b.iy.Append(in.Y)
			b.iz.Append(in.Z)
			b.iedep.Append(in.Edep)
			b.itype.Append(in.Type)
		}
	}

	for i, v := range b.staged {
		b.counts[i].Append(v)
	}

	b.rows++
	return nil
}

// take moves the buffered rows into a record and resets the builders. The
// caller releases the record.
func (b *rowBuffer) take() arrow.Record {
	rec := b.rb.NewRecord()
	b.rows = 0
	return rec
}

// len returns the number of buffered rows.
func (b *rowBuffer) len() int {
	return b.rows
}

// columnLengths returns the row count of every column builder.
func (b *rowBuffer) columnLengths() []int {
	fields := b.rb.Fields()
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i] = f.Len()
	}
	return out
}

func (b *rowBuffer) release() {
	b.rb.Release()
}
