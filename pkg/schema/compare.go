package schema

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Equal reports whether a and b describe the same column layout: the same
// column names in the same order, the same nesting and physical types, and
// the same nullability of columns and struct fields. Key/value metadata is
// ignored, and so is list element nullability, which Parquet does not keep:
// pqarrow always stores list elements as optional.
func Equal(a, b *arrow.Schema) bool {
	return Diff(a, b) == nil
}

// Diff returns nil when expected and actual are structurally equal, and an
// error naming the first difference otherwise.
func Diff(expected, actual *arrow.Schema) error {
	if expected == nil || actual == nil {
		if expected == actual {
			return nil
		}
		return fmt.Errorf("schema missing")
	}

	if expected.NumFields() != actual.NumFields() {
		return fmt.Errorf("column count: expected %d, got %d", expected.NumFields(), actual.NumFields())
	}

	for i := 0; i < expected.NumFields(); i++ {
		e, a := expected.Field(i), actual.Field(i)
		if e.Name != a.Name {
			return fmt.Errorf("column %d: expected name %q, got %q", i, e.Name, a.Name)
		}
		if e.Nullable != a.Nullable {
			return fmt.Errorf("column %q: expected nullable=%t, got %t", e.Name, e.Nullable, a.Nullable)
		}
		if err := typeDiff(e.Name, e.Type, a.Type); err != nil {
			return err
		}
	}
	return nil
}

func typeDiff(path string, expected, actual arrow.DataType) error {
	if expected.ID() != actual.ID() {
		return fmt.Errorf("column %q: expected type %s, got %s", path, expected, actual)
	}

	switch et := expected.(type) {
	case *arrow.ListType:
		at := actual.(*arrow.ListType)
		return typeDiff(path+".element", et.Elem(), at.Elem())
	case *arrow.StructType:
		at := actual.(*arrow.StructType)
		if et.NumFields() != at.NumFields() {
			return fmt.Errorf("column %q: expected %d struct fields, got %d", path, et.NumFields(), at.NumFields())
		}
		for i := 0; i < et.NumFields(); i++ {
			ef, af := et.Field(i), at.Field(i)
			if ef.Name != af.Name {
				return fmt.Errorf("column %q: struct field %d: expected %q, got %q", path, i, ef.Name, af.Name)
			}
			if ef.Nullable != af.Nullable {
				return fmt.Errorf("column %q: struct field %q: expected nullable=%t, got %t",
					path, ef.Name, ef.Nullable, af.Nullable)
			}
			if err := typeDiff(path+"."+ef.Name, ef.Type, af.Type); err != nil {
				return err
			}
		}
	}
	return nil
}
