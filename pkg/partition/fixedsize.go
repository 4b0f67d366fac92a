package partition

import (
	"math"
	"strconv"

	"github.com/stratadb/strata/pkg/types"
)

// FixedSize buckets a Number index into partitions of a fixed numeric
// width: an index i lands in the partition named i − (i mod size).
type FixedSize struct {
	size float64
}

// NewFixedSize creates a fixed-size numeric partitioner.
func NewFixedSize(size float64) *FixedSize {
	return &FixedSize{size: size}
}

// Partition maps a numeric index to its bucket's name. Bucket names format
// without trailing zeros, so integral buckets read as integers.
func (f *FixedSize) Partition(index interface{}) (string, error) {
	v, ok := toFloat(index)
	if !ok {
		return "", types.NewUnsupportedType(index)
	}
	bucket := v - math.Mod(v, f.size)
	return strconv.FormatFloat(bucket, 'f', -1, 64), nil
}

// Range orders partition names numerically.
func (f *FixedSize) Range(names []string) (Range, bool) {
	return rangeBy(names, func(a, b string) (bool, bool) {
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		if errA != nil || errB != nil {
			return false, true
		}
		return fa < fb, fa == fb
	})
}

// toFloat coerces the accepted numeric representations to float64.
func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
