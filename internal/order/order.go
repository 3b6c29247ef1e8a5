// Package order keeps folder order values dense and stable: normalization
// after every snapshot, manual reordering and append-on-create.
package order

import (
	"sort"

	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

// Change is one folder whose order must be rewritten.
type Change struct {
	Key   string
	Order int
}

// Sort returns the folders in display order. When every folder carries an
// order value it is used, otherwise the whole set falls back to creation
// time. Keys break ties in both cases.
func Sort(folders []model.Folder) []model.Folder {
	out := append([]model.Folder(nil), folders...)
	byOrder := true
	for _, f := range out {
		if !f.HasOrder() {
			byOrder = false
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if byOrder && *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		if !byOrder && a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Key < b.Key
	})
	return out
}

// Normalize sorts folders and assigns order = index. It returns the sorted
// folders (with their new orders) and the folders whose stored value differs.
// Running it on its own output yields no changes.
func Normalize(folders []model.Folder) ([]model.Folder, []Change) {
	sorted := Sort(folders)
	var dirty []Change
	for i, f := range sorted {
		if !f.HasOrder() || *f.Order != i {
			dirty = append(dirty, Change{Key: f.Key, Order: i})
		}
		sorted[i] = f.WithOrder(i)
	}
	return sorted, dirty
}

// Next returns the order for a newly created folder: one past the current
// maximum, a missing order counting as 0. With no folders it returns 0.
func Next(folders []model.Folder) int {
	max := -1
	for _, f := range folders {
		if o := f.OrderOr(0); o > max {
			max = o
		}
	}
	return max + 1
}

// Move removes from and inserts it at toIndex of the remaining sequence.
// toIndex is clamped. Unknown from leaves keys unchanged.
func Move(keys []string, from string, toIndex int) []string {
	src := indexOf(keys, from)
	if src < 0 {
		return append([]string(nil), keys...)
	}

	rest := make([]string, 0, len(keys))
	rest = append(rest, keys[:src]...)
	rest = append(rest, keys[src+1:]...)

	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(rest) {
		toIndex = len(rest)
	}

	out := make([]string, 0, len(keys))
	out = append(out, rest[:toIndex]...)
	out = append(out, from)
	out = append(out, rest[toIndex:]...)
	return out
}

// DropIndex resolves a discrete drop onto target: the insertion index is the
// target's current position. Unknown targets resolve to the end.
func DropIndex(keys []string, target string) int {
	if i := indexOf(keys, target); i >= 0 {
		return i
	}
	return len(keys)
}

// Element is the on-screen geometry of one folder during a drag.
type Element struct {
	Key    string
	Top    float64
	Height float64
}

// HoverIndex resolves a continuous drag: the index, within the sequence
// without the dragged folder, of the nearest element whose vertical midpoint
// lies below pointerY. When there is none the folder goes to the end.
func HoverIndex(elements []Element, dragged string, pointerY float64) int {
	idx := 0
	best := -1
	var bestDist float64
	for _, el := range elements {
		if el.Key == dragged {
			continue
		}
		offset := pointerY - el.Top - el.Height/2
		if offset < 0 && (best < 0 || -offset < bestDist) {
			best = idx
			bestDist = -offset
		}
		idx++
	}
	if best < 0 {
		return idx
	}
	return best
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
