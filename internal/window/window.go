// Package window computes which rows of a long list are on screen.
//
// A Windower keeps per-item sizes (estimated until measured) and their
// prefix sums. Prefix sums are rebuilt lazily, starting at the lowest item
// whose size changed since the last rebuild, so scrolling never walks the
// whole list.
package window

import "sort"

// Range is the half-open index range [Start, End) to render.
type Range struct {
	Start int
	End   int
}

// Len is the number of items in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether nothing should be rendered.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Fixed returns an estimate function giving every item the same size.
func Fixed(size int) func(int) int {
	return func(int) int { return size }
}

// Windower maps scroll positions to item ranges.
type Windower struct {
	estimate func(int) int
	overscan int

	sizes   []int
	offsets []int // offsets[i] is the start of item i; offsets[len(sizes)] is the total

	// dirtyFrom is the first offsets index that needs rebuilding.
	dirtyFrom int
	rebuilds  int
}

// New creates a Windower for count items. A nil estimate sizes every item 1,
// which is a row per item in a terminal.
func New(count int, estimate func(int) int, overscan int) *Windower {
	if estimate == nil {
		estimate = Fixed(1)
	}
	w := &Windower{
		estimate: estimate,
		overscan: max(overscan, 0),
		offsets:  []int{0},
	}
	w.SetCount(count)
	return w
}

// Count returns the number of items.
func (w *Windower) Count() int {
	return len(w.sizes)
}

// SetCount grows or shrinks the list. New items start at their estimate;
// existing measurements are kept.
func (w *Windower) SetCount(count int) {
	count = max(count, 0)
	old := len(w.sizes)
	switch {
	case count > old:
		for i := old; i < count; i++ {
			w.sizes = append(w.sizes, max(w.estimate(i), 0))
		}
		w.offsets = append(w.offsets, make([]int, count-old)...)
	case count < old:
		w.sizes = w.sizes[:count]
		w.offsets = w.offsets[:count+1]
	}
	w.dirtyFrom = min(w.dirtyFrom, min(old, count)+1)
}

// Measure records the real size of item i. A size equal to the current one
// leaves the prefix sums alone.
func (w *Windower) Measure(i, size int) {
	if i < 0 || i >= len(w.sizes) {
		return
	}
	size = max(size, 0)
	if w.sizes[i] == size {
		return
	}
	w.sizes[i] = size
	w.dirtyFrom = min(w.dirtyFrom, i+1)
}

// Size returns the current size of item i.
func (w *Windower) Size(i int) int {
	if i < 0 || i >= len(w.sizes) {
		return 0
	}
	return w.sizes[i]
}

func (w *Windower) rebuild() {
	n := len(w.sizes)
	if w.dirtyFrom > n {
		return
	}
	for i := max(w.dirtyFrom, 1); i <= n; i++ {
		w.offsets[i] = w.offsets[i-1] + w.sizes[i-1]
	}
	w.dirtyFrom = n + 1
	w.rebuilds++
}

// TotalSize is the extent of the whole list.
func (w *Windower) TotalSize() int {
	w.rebuild()
	return w.offsets[len(w.sizes)]
}

// Offset returns where item i starts. Indexes past the end return the total.
func (w *Windower) Offset(i int) int {
	w.rebuild()
	i = min(max(i, 0), len(w.sizes))
	return w.offsets[i]
}

// Range returns the items covering [offset, offset+viewport), widened by the
// overscan on both sides and clamped to the list.
func (w *Windower) Range(viewport, offset int) Range {
	n := len(w.sizes)
	if n == 0 {
		return Range{}
	}
	total := w.TotalSize()
	if viewport >= total {
		return Range{Start: 0, End: n}
	}
	viewport = max(viewport, 1)
	offset = min(max(offset, 0), total)

	// First item ending after offset.
	lo := sort.Search(n, func(i int) bool { return w.offsets[i+1] > offset })
	if lo == n {
		lo = n - 1
	}
	// First item starting at or after the viewport's far edge.
	bottom := offset + viewport
	candidates := n - lo
	hi := lo + 1 + sort.Search(candidates, func(k int) bool { return w.offsets[lo+1+k] >= bottom })
	hi = min(hi, n)

	return Range{
		Start: max(lo-w.overscan, 0),
		End:   min(hi+w.overscan, n),
	}
}

// EnsureVisible returns the scroll offset that keeps item i fully inside
// the viewport while moving as little as possible from offset.
func (w *Windower) EnsureVisible(i, viewport, offset int) int {
	n := len(w.sizes)
	if n == 0 {
		return 0
	}
	i = min(max(i, 0), n-1)
	start := w.Offset(i)
	end := start + w.sizes[i]
	switch {
	case start < offset:
		offset = start
	case end > offset+viewport:
		offset = end - viewport
	}
	return min(max(offset, 0), max(w.TotalSize()-viewport, 0))
}
