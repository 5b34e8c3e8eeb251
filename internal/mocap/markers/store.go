package markers

import (
	"errors"
	"fmt"
)

// ErrCountMismatch is returned when a marker count disagrees with the size
// of the set or segment it is applied to. This is a fatal precondition
// violation, never silently truncated or padded.
var ErrCountMismatch = errors.New("marker count mismatch")

// slotsPerMarker is the fixed arena layout: x, y, visible per marker.
const slotsPerMarker = 3

// Store is an arena-style fixed-layout buffer holding marker results for
// every crop. Ownership is statically partitioned: each worker writes only
// through its own Segment, and the supervisor reads segments only after the
// dispatch/completion handshake, so no locking guards the buffer itself.
type Store struct {
	buf  []float64
	next int
}

// NewStore allocates an arena with capacity for the given total number of
// markers across all crops.
func NewStore(totalMarkers int) *Store {
	return &Store{buf: make([]float64, totalMarkers*slotsPerMarker)}
}

// Allocate carves the next segment of n markers out of the arena. The
// layout is fixed at construction time; allocation beyond capacity is a
// wiring bug and returns an error.
func (st *Store) Allocate(n int) (*Segment, error) {
	need := n * slotsPerMarker
	if st.next+need > len(st.buf) {
		return nil, fmt.Errorf("store: allocating %d markers exceeds arena capacity %d",
			n, len(st.buf)/slotsPerMarker)
	}
	seg := &Segment{buf: st.buf[st.next : st.next+need]}
	st.next += need
	return seg, nil
}

// Segment is one crop's statically owned slice of the arena.
type Segment struct {
	buf []float64
}

// Len returns the number of marker slots in the segment.
func (sg *Segment) Len() int { return len(sg.buf) / slotsPerMarker }

// Put writes one marker's result into the segment. Only the owning worker
// may call Put.
func (sg *Segment) Put(i, x, y int, visible bool) {
	base := i * slotsPerMarker
	sg.buf[base] = float64(x)
	sg.buf[base+1] = float64(y)
	v := 0.0
	if visible {
		v = 1.0
	}
	sg.buf[base+2] = v
}

// At reads one marker's result from the segment. The supervisor may call
// At only after the completion handshake for the tick.
func (sg *Segment) At(i int) (x, y int, visible bool) {
	base := i * slotsPerMarker
	return int(sg.buf[base]), int(sg.buf[base+1]), sg.buf[base+2] != 0
}
