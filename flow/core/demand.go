package core

import "math"

// Unbounded is the demand sentinel meaning "send everything".
const Unbounded int64 = math.MaxInt64

// AddCap adds two non-negative demands, saturating at Unbounded.
func AddCap(a, b int64) int64 {
	if a == Unbounded || b == Unbounded {
		return Unbounded
	}
	sum := a + b
	if sum < 0 {
		return Unbounded
	}
	return sum
}

// MulCap multiplies two non-negative demands, saturating at Unbounded.
func MulCap(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a == Unbounded || b == Unbounded || a > Unbounded/b {
		return Unbounded
	}
	return a * b
}

// Demand tracks outstanding requested elements. It is not safe for
// concurrent use; an operator mutates it only inside its Serializer.
type Demand struct {
	n int64
}

// Add records n more requested elements.
func (d *Demand) Add(n int64) {
	d.n = AddCap(d.n, n)
}

// Take consumes one element of demand. It reports false when nothing is
// outstanding. Unbounded demand is never decremented.
func (d *Demand) Take() bool {
	if d.n == 0 {
		return false
	}
	if d.n != Unbounded {
		d.n--
	}
	return true
}

// Get returns the outstanding count.
func (d *Demand) Get() int64 { return d.n }

// Unbounded reports whether backpressure has been switched off.
func (d *Demand) Unbounded() bool { return d.n == Unbounded }

// Set overwrites the outstanding count, used when a subscription is swapped.
func (d *Demand) Set(n int64) {
	if n < 0 {
		n = 0
	}
	d.n = n
}

// Reset clears the outstanding count and returns what it held.
func (d *Demand) Reset() int64 {
	n := d.n
	d.n = 0
	return n
}
