package aassert

import (
	"reflect"

	"github.com/stretchr/testify/assert"
)

// NumFields asserts that the struct object has expected exported fields.
// Exported fields of nested structs, including the element types of pointers, slices and maps, count as well.
// Use it to be reminded to update the mappings of a struct, e.g. to a database row or a CSV record,
// when a field is added.
func NumFields(t assert.TestingT, expected int, object any, msgAndArgs ...any) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}

	typ := reflect.TypeOf(object)
	if typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	if typ == nil || typ.Kind() != reflect.Struct {
		return assert.Fail(t, "invalid argument, it has to be a struct", msgAndArgs...)
	}

	if n := numFields(typ); n != expected {
		return assert.Fail(t,
			"the number of fields of "+typ.String()+" changed, check all mappings of it and correct the expected count",
			append([]any{"has %d fields, expected %d", n, expected}, msgAndArgs...)...,
		)
	}

	return true
}

func numFields(typ reflect.Type) int {
	for typ.Kind() == reflect.Pointer || typ.Kind() == reflect.Slice ||
		typ.Kind() == reflect.Array || typ.Kind() == reflect.Map {
		typ = typ.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return 0
	}

	var n int

	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		n += 1 + numFields(field.Type)
	}

	return n
}
