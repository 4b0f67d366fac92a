package partition

import (
	"fmt"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

// YearMonth buckets a Date index into one partition per UTC calendar
// month, named YYYY-MM. An optional adapter coerces non-Date index values
// to a time before routing.
type YearMonth struct {
	adapt func(interface{}) (time.Time, error)
}

// NewYearMonth creates a year-month date partitioner.
func NewYearMonth() *YearMonth {
	return &YearMonth{}
}

// NewYearMonthWithAdapter creates a year-month partitioner whose index
// values pass through adapt before routing.
func NewYearMonthWithAdapter(adapt func(interface{}) (time.Time, error)) *YearMonth {
	return &YearMonth{adapt: adapt}
}

// Partition maps a date index to its UTC YYYY-MM partition name.
func (y *YearMonth) Partition(index interface{}) (string, error) {
	var t time.Time
	if y.adapt != nil {
		adapted, err := y.adapt(index)
		if err != nil {
			return "", err
		}
		t = adapted
	} else {
		v, ok := index.(time.Time)
		if !ok {
			return "", types.NewUnsupportedType(index)
		}
		t = v
	}
	return t.UTC().Format("2006-01"), nil
}

// Range orders partition names by year*12 + month.
func (y *YearMonth) Range(names []string) (Range, bool) {
	return rangeBy(names, func(a, b string) (bool, bool) {
		ma, errA := monthOrdinal(a)
		mb, errB := monthOrdinal(b)
		if errA != nil || errB != nil {
			return false, true
		}
		return ma < mb, ma == mb
	})
}

// monthOrdinal parses a YYYY-MM name to a single orderable integer.
func monthOrdinal(name string) (int, error) {
	var year, month int
	if _, err := fmt.Sscanf(name, "%d-%d", &year, &month); err != nil {
		return 0, err
	}
	return year*12 + month, nil
}
