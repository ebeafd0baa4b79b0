// Package dynvec provides the append-only storage backing a write log:
// a contiguous sequence of variably-sized, differently-typed pending
// values behind a uniform element handle.
//
// Each record is a GC-visible header (target cell pointer plus payload
// location) over a shared word arena holding the raw value words. A
// record is never physically removed; the log deactivates it by
// clearing its target pointer, which keeps every index and offset
// handed out earlier stable for the life of the log attempt.
package dynvec

import (
	"github.com/l-stm/tcell"
)

type header struct {
	// target is nil once the record has been deactivated. Keeping the
	// pointer here, in a typed slot, is what keeps the cell reachable
	// by the GC; the arena below holds value words only.
	target *tcell.Erased
	off    int // payload offset into the arena, in words
	n      int // payload length, in words
}

// A Vec stores records contiguously at word granularity. The zero Vec
// is empty and ready to use. A Vec is not safe for concurrent use; the
// surrounding log is single-owner by design.
type Vec struct {
	hdrs  []header
	words []uintptr
}

// Len returns the number of records, active or not.
func (v *Vec) Len() int { return len(v.hdrs) }

// WordLen returns the total payload footprint in words.
func (v *Vec) WordLen() int { return len(v.words) }

// IsEmpty reports whether the vec holds no records.
func (v *Vec) IsEmpty() bool { return len(v.hdrs) == 0 }

// Push appends a record for target holding val and returns its index.
// Indices are stable until the next Clear.
func Push[T any](v *Vec, target *tcell.Erased, val T) int {
	n := tcell.SizeWords[T]()
	off := len(v.words)
	v.words = append(v.words, make([]uintptr, n)...)
	tcell.MarshalWords(&val, v.words[off:off+n])
	v.hdrs = append(v.hdrs, header{target: target, off: off, n: n})
	return len(v.hdrs) - 1
}

// NextPushAllocates reports whether pushing a T would grow either
// backing allocation. Capacity-sensitive callers pre-flight with this.
func NextPushAllocates[T any](v *Vec) bool {
	return len(v.hdrs) == cap(v.hdrs) ||
		len(v.words)+tcell.SizeWords[T]() > cap(v.words)
}

// At returns the element handle for record i.
func (v *Vec) At(i int) Elem {
	h := &v.hdrs[i]
	return Elem{hdr: h, words: v.words[h.off : h.off+h.n]}
}

// Clear empties the vec and drops every record's cell reference,
// releasing the cells to the GC. Storage is retained for reuse.
func (v *Vec) Clear() {
	for i := range v.hdrs {
		v.hdrs[i].target = nil
	}
	v.ClearNoDrop()
}

// ClearNoDrop empties the vec without touching record contents. For
// callers that have already moved or invalidated every record and must
// not tear anything down twice.
func (v *Vec) ClearNoDrop() {
	v.hdrs = v.hdrs[:0]
	v.words = v.words[:0]
}

// An Elem is the narrow view of one record: its target identity and its
// raw payload words. Valid until the owning Vec's next Push or Clear.
type Elem struct {
	hdr   *header
	words []uintptr
}

// Target returns the record's cell, or nil if it was deactivated.
func (e Elem) Target() *tcell.Erased { return e.hdr.target }

// Deactivate makes the record inert. Panics if it already was; a
// double deactivation means the caller's bookkeeping is broken.
func (e Elem) Deactivate() {
	if e.hdr.target == nil {
		panic("dynvec: deactivating an inactive record")
	}
	e.hdr.target = nil
}

// IsTarget reports whether the record is active and aimed at c.
// Identity is address equality.
func (e Elem) IsTarget(c *tcell.Erased) bool {
	return e.hdr.target == c
}

// Words returns the record's payload words for in-place read or
// overwrite.
func (e Elem) Words() []uintptr { return e.words }
