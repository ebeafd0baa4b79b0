package tcell

import (
	"fmt"
	"reflect"
	"unsafe"
)

const wordBytes = int(unsafe.Sizeof(uintptr(0)))

// SizeWords returns T's footprint rounded up to whole words. Pending
// values are stored and copied at word granularity only.
func SizeWords[T any]() int {
	var v T
	return (int(unsafe.Sizeof(v)) + wordBytes - 1) / wordBytes
}

// CheckValueType panics unless T is a legal cell value type: non-zero
// sized and free of pointers. Zero-sized values would make "already
// written" bookkeeping ambiguous; pointerful values cannot live in the
// raw word arenas this runtime copies through. Called once per cell or
// record construction, never on a hot path.
func CheckValueType[T any]() {
	var v T
	if unsafe.Sizeof(v) == 0 {
		panic(fmt.Sprintf("tcell: zero-sized value type %T", v))
	}
	if typeHasPointers(reflect.TypeOf(&v).Elem()) {
		panic(fmt.Sprintf("tcell: value type %T contains pointers", v))
	}
}

func typeHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return typeHasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if typeHasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		// Pointers, slices, maps, chans, funcs, strings, interfaces.
		return true
	}
}

// MarshalWords copies v's raw bytes into dst, zero-filling the tail of
// the last word. len(dst) must be SizeWords[T]().
func MarshalWords[T any](v *T, dst []uintptr) {
	n := int(unsafe.Sizeof(*v))
	if len(dst) != (n+wordBytes-1)/wordBytes {
		panic("tcell: marshal into wrong-sized word buffer")
	}
	dst[len(dst)-1] = 0
	src := unsafe.Slice((*byte)(unsafe.Pointer(v)), n)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), len(dst)*wordBytes)
	copy(buf, src)
}

// UnmarshalWords reassembles a T from its raw words. len(src) must be
// SizeWords[T]().
func UnmarshalWords[T any](src []uintptr) T {
	var v T
	n := int(unsafe.Sizeof(v))
	if len(src) != (n+wordBytes-1)/wordBytes {
		panic("tcell: unmarshal from wrong-sized word buffer")
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&src[0])), len(src)*wordBytes)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&v)), n)
	copy(dst, buf)
	return v
}
