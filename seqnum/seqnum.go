// Package seqnum implements the cyclically wrapping sequence number used to
// identify packages within one direction of a connection.
package seqnum

// Number is a sequence number with a fixed byte width. The zero value means
// "no package has ever been sent or received in this direction" and is never
// produced by incrementing: incrementing Max wraps back to 1.
type Number uint32

// Width is the byte width a Number is encoded with on the wire. The spec's
// default is 2 bytes (16 bit sequence space); the value is process-wide
// configuration baked into a connection at construction time, never a
// mutable global (spec.md §9).
type Width uint8

// Max returns the largest representable sequence number for the given
// width, e.g. 65535 for Width(2).
func (w Width) Max() Number {
	return Number(1)<<(8*uint(w)) - 1
}

// Add returns n+delta, wrapping around Max back to 1. delta may be negative.
func (n Number) Add(delta int64, w Width) Number {
	max := w.Max()
	v := int64(n) + delta
	m := int64(max)
	v %= m
	if v <= 0 {
		v += m
	}
	return Number(v)
}

// Next is Add(1, w).
func (n Number) Next(w Width) Number {
	return n.Add(1, w)
}

// Diff returns the signed cyclic distance a-b in (-Max/2, Max/2], the same
// rule used to decide newness and to size ack-bitfield shifts.
func (a Number) Diff(b Number, w Width) int64 {
	max := int64(w.Max())
	d := int64(a) - int64(b)
	d %= max
	half := max / 2
	if d > half {
		d -= max
	} else if d < -half {
		d += max
	}
	return d
}

// NewerThan reports whether a is newer than b under the cyclic-distance
// rule: a is newer than b iff (a-b) mod Max lies in (0, Max/2]. Only
// meaningful for nonzero a and b; callers check IsZero separately.
func (a Number) NewerThan(b Number, w Width) bool {
	return a.Diff(b, w) > 0
}

// IsZero reports whether n is the "never sent/received" sentinel.
func (n Number) IsZero() bool {
	return n == 0
}
