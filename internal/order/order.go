// Package order maintains dense zero-based ordering indices.
//
// A partition is any collection whose members carry a sort_order: a user's
// plans of one type, or a plan's tasks. The engine guarantees that after
// every operation the live sort_order values of a partition are exactly
// {0, 1, ..., n-1}: dense, zero-based, no gaps, no duplicates.
//
// The engine is pure. It computes the resulting index for the touched
// member plus a single Shift describing how every other member moves, and
// the store applies both in one SQL statement. A reorder is therefore a
// single round trip and cannot interleave with a concurrent reorder on the
// same partition mid-update.
package order

import "github.com/daybook-app/daybook/internal/fault"

// Unbounded marks a Shift with no upper limit.
const Unbounded = -1

// Shift describes an increment or decrement applied to every member whose
// sort_order lies in [Lo, Hi] (Hi == Unbounded means no upper limit).
// A zero Shift (Delta == 0) affects nobody.
type Shift struct {
	Lo    int
	Hi    int
	Delta int
}

// Contains reports whether the shift affects a member at the given order.
func (s Shift) Contains(order int) bool {
	if s.Delta == 0 || order < s.Lo {
		return false
	}
	return s.Hi == Unbounded || order <= s.Hi
}

// Apply returns the order after the shift.
func (s Shift) Apply(order int) int {
	if s.Contains(order) {
		return order + s.Delta
	}
	return order
}

// Append returns the index a new member receives: the current partition
// size, keeping the partition dense without touching existing members.
func Append(partitionSize int) int { return partitionSize }

// CompactionShift returns the shift that closes the gap left by removing
// the member at removedOrder: everyone above it moves down one slot.
// It must be applied in the same transaction as the entity delete.
func CompactionShift(removedOrder int) Shift {
	return Shift{Lo: removedOrder + 1, Hi: Unbounded, Delta: -1}
}

// MergeOffset returns the offset added to every member of a partition being
// folded into a destination of the given size: the merged members land after
// the destination's existing members. The vacated source partition needs no
// compaction because it empties entirely.
func MergeOffset(destinationSize int) int { return destinationSize }

// Move describes relocating the member at From to position To within a
// partition, with Shift covering every displaced member in between.
type Move struct {
	From  int
	To    int
	Shift Shift
}

// NoOp reports whether the move leaves the partition unchanged.
func (m Move) NoOp() bool { return m.From == m.To }

// PlanMove validates a reorder request against the current partition size
// and computes the resulting move.
//
// Both indices must name existing positions: [0, size). Moving later shifts
// the members in (From, To] down one; moving earlier shifts [To, From) up
// one. All other members keep their order.
func PlanMove(oldOrder, newOrder, partitionSize int) (Move, error) {
	if oldOrder < 0 || oldOrder >= partitionSize {
		return Move{}, fault.Input("oldOrder %d outside partition of size %d", oldOrder, partitionSize)
	}
	if newOrder < 0 || newOrder >= partitionSize {
		return Move{}, fault.Input("newOrder %d outside partition of size %d", newOrder, partitionSize)
	}

	m := Move{From: oldOrder, To: newOrder}
	switch {
	case oldOrder < newOrder:
		m.Shift = Shift{Lo: oldOrder + 1, Hi: newOrder, Delta: -1}
	case oldOrder > newOrder:
		m.Shift = Shift{Lo: newOrder, Hi: oldOrder - 1, Delta: +1}
	}
	return m, nil
}

// ApplyMove returns the order a member at the given position holds after
// the move. Used by tests and the invariant checker; the store applies the
// equivalent CASE update in SQL.
func (m Move) ApplyMove(order int) int {
	if m.NoOp() {
		return order
	}
	if order == m.From {
		return m.To
	}
	return m.Shift.Apply(order)
}

// Dense reports whether the given sort orders form exactly {0..n-1}.
func Dense(orders []int) bool {
	seen := make([]bool, len(orders))
	for _, o := range orders {
		if o < 0 || o >= len(orders) || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}
