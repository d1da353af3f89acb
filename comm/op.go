package comm

// An Op is a reduction operation applied element-wise to vectors
// during Reduce.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

// Combine folds src into dst element-wise.
func (op Op) Combine(dst, src []float64) {
	if len(dst) != len(src) {
		panic("mismatching lengths")
	}
	switch op {
	case OpSum:
		for i, x := range src {
			dst[i] += x
		}
	case OpMax:
		for i, x := range src {
			if x > dst[i] {
				dst[i] = x
			}
		}
	case OpMin:
		for i, x := range src {
			if x < dst[i] {
				dst[i] = x
			}
		}
	default:
		panic("unknown reduction op")
	}
}

func (op Op) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	}
	return "unknown"
}
