package mtringbuf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	rb := New[int](3)

	assertEqual(t, rb.Recent(-1), []int{})

	rb.Add(1)
	assertEqual(t, rb.Recent(-1), []int{1})

	rb.Add(2)
	rb.Add(3)
	assertEqual(t, rb.Recent(-1), []int{3, 2, 1})

	rb.Add(4) // evicts 1
	assertEqual(t, rb.Recent(-1), []int{4, 3, 2})
}

func TestRingBufferRecentN(t *testing.T) {
	rb := New[int](5)
	for i := 1; i <= 5; i++ {
		rb.Add(i)
	}

	assertEqual(t, rb.Recent(2), []int{5, 4})
	assertEqual(t, rb.Recent(0), []int{5, 4, 3, 2, 1})
	assertEqual(t, rb.Recent(99), []int{5, 4, 3, 2, 1})
}

func TestRingBufferZeroCapacity(t *testing.T) {
	rb := New[int](0)
	rb.Add(1)
	assertEqual(t, rb.Recent(-1), []int{})
}
