package partition

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/stratadb/strata/pkg/types"
)

// Hash buckets any index kind into a fixed number of partitions by
// murmur3 hash of the index's canonical string. Hash partitions carry no
// chronological meaning, so Range orders names lexicographically.
type Hash struct {
	buckets uint32
}

// NewHash creates a hash partitioner with the given bucket count.
func NewHash(buckets uint32) *Hash {
	if buckets == 0 {
		buckets = 16
	}
	return &Hash{buckets: buckets}
}

// Partition maps an index value to its hash bucket's name.
func (h *Hash) Partition(index interface{}) (string, error) {
	var canonical string
	switch x := index.(type) {
	case string:
		canonical = x
	case float64:
		canonical = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		canonical = strconv.FormatFloat(float64(x), 'f', -1, 64)
	case int:
		canonical = strconv.Itoa(x)
	case int64:
		canonical = strconv.FormatInt(x, 10)
	case time.Time:
		canonical = strconv.FormatInt(x.UnixMilli(), 10)
	case *url.URL:
		canonical = x.String()
	default:
		return "", types.NewUnsupportedType(index)
	}
	bucket := murmur3.Sum32([]byte(canonical)) % h.buckets
	return fmt.Sprintf("hash_%04d", bucket), nil
}

// Range orders bucket names lexicographically; bucket numbers are
// zero-padded to four digits, which makes that the numeric order for up to
// 10000 buckets.
func (h *Hash) Range(names []string) (Range, bool) {
	return rangeBy(names, func(a, b string) (bool, bool) {
		return a < b, a == b
	})
}
