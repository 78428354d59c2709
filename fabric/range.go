package fabric

import "fmt"

// Range is a fractional interval of the data set, [0,1) being all data.
type Range struct {
	Start, End float32
}

// FullRange covers all data.
var FullRange = Range{0, 1}

func (r Range) Size() float32 { return r.End - r.Start }
func (r Range) HasData() bool { return r.Start < r.End }
func (r Range) IsFull() bool  { return r == FullRange }
func (r Range) IsValid() bool { return r.Start >= 0 && r.End <= 1 && r.Start <= r.End }

// Apply narrows r to the sub-interval rhs of r.
func (r Range) Apply(rhs Range) Range {
	w := r.End - r.Start
	r.End = r.Start + rhs.End*w
	r.Start += rhs.Start * w
	return r
}

func (r Range) String() string {
	return fmt.Sprintf("[%g %g]", r.Start, r.End)
}
