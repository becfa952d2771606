package oscore

// Replay window constants.
const (
	// DefaultReplayWindowSize is the number of sequence numbers tracked below
	// the highest accepted one (RFC 8613 Section 7.4 suggests 32).
	DefaultReplayWindowSize = 32

	// MaxReplayWindowSize is the largest window the bitmap can hold.
	MaxReplayWindowSize = 64
)

// ReplayWindow implements the recipient sliding window for replay detection.
//
// Bit i of the bitmap marks sequence number highest-i as received. A check is
// tentative: Check returns an accept function that commits the sequence
// number, to be called only after the message authenticated.
//
// ReplayWindow is not safe for concurrent use; SecurityContext serializes
// access under its recipient lock.
type ReplayWindow struct {
	highest     uint64 // Largest sequence number accepted
	bitmap      uint64 // Bitmap for window [highest-size+1, highest]
	size        uint
	initialized bool // Whether any sequence number has been accepted
}

// NewReplayWindow creates an empty window that accepts any first sequence
// number. size is clamped to [1, MaxReplayWindowSize].
func NewReplayWindow(size uint) *ReplayWindow {
	if size == 0 {
		size = DefaultReplayWindowSize
	}
	if size > MaxReplayWindowSize {
		size = MaxReplayWindowSize
	}
	return &ReplayWindow{size: size}
}

// Check reports whether seq is fresh. The returned accept function marks seq
// as received; calling it is the only way the window changes.
func (w *ReplayWindow) Check(seq uint64) (accept func(), ok bool) {
	if seq > MaxSequenceNumber {
		return func() {}, false
	}

	if w.initialized && seq <= w.highest {
		diff := w.highest - seq
		if diff >= uint64(w.size) {
			// Behind the window
			return func() {}, false
		}
		if w.bitmap&(1<<diff) != 0 {
			// Already received
			return func() {}, false
		}
	}

	return func() {
		w.accept(seq)
	}, true
}

func (w *ReplayWindow) accept(seq uint64) {
	if !w.initialized {
		w.highest = seq
		w.bitmap = 1
		w.initialized = true
		return
	}

	if seq > w.highest {
		shift := seq - w.highest
		if shift >= MaxReplayWindowSize {
			// Jumped beyond the window, reset bitmap
			w.bitmap = 0
		} else {
			w.bitmap <<= shift
		}
		w.highest = seq
	}

	w.bitmap |= 1 << (w.highest - seq)
	w.bitmap &= w.mask()
}

// mask keeps only the bits inside the window.
func (w *ReplayWindow) mask() uint64 {
	if w.size >= MaxReplayWindowSize {
		return ^uint64(0)
	}
	return 1<<w.size - 1
}

// Highest returns the largest accepted sequence number and whether any
// sequence number has been accepted.
func (w *ReplayWindow) Highest() (uint64, bool) {
	return w.highest, w.initialized
}

// Size returns the window size.
func (w *ReplayWindow) Size() uint {
	return w.size
}
