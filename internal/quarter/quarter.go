// Package quarter maps calendar dates onto quarter-end keys (YYYYMM) and
// provides the arithmetic the ownership stages use to walk quarter ranges.
package quarter

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Quarter is a quarter-end key such as 202103. The month is always one of
// 3, 6, 9 or 12.
type Quarter int

// FromDate returns the quarter key whose quarter contains t.
func FromDate(t time.Time) Quarter {
	m := int(t.Month())
	return Quarter(t.Year()*100 + ((m+2)/3)*3)
}

// New builds a key from a year and a quarter-end month. Months that are not
// quarter ends are bucketed into their quarter.
func New(year, month int) Quarter {
	return Quarter(year*100 + ((month+2)/3)*3)
}

// Parse accepts "202103", "2021-03" or a full "2021-03-31" date.
func Parse(s string) (Quarter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("quarter: empty value")
	}

	if len(s) == 6 && !strings.Contains(s, "-") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, eris.Wrapf(err, "quarter: parse %q", s)
		}
		q := Quarter(n)
		if !q.Valid() {
			return 0, eris.Errorf("quarter: %q is not a quarter-end key", s)
		}
		return q, nil
	}

	for _, layout := range []string{"2006-01-02", "2006-01", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return FromDate(t), nil
		}
	}
	return 0, eris.Errorf("quarter: unrecognized value %q", s)
}

// Year returns the calendar year of the key.
func (q Quarter) Year() int { return int(q) / 100 }

// Month returns the quarter-end month of the key.
func (q Quarter) Month() int { return int(q) % 100 }

// Valid reports whether q carries a quarter-end month.
func (q Quarter) Valid() bool {
	if q <= 0 {
		return false
	}
	switch q.Month() {
	case 3, 6, 9, 12:
		return true
	}
	return false
}

// index is a dense ordinal: consecutive quarters differ by one.
func (q Quarter) index() int {
	return q.Year()*4 + q.Month()/3 - 1
}

func fromIndex(i int) Quarter {
	return Quarter((i/4)*100 + (i%4+1)*3)
}

// Add shifts q by n quarters. Negative n moves backwards.
func (q Quarter) Add(n int) Quarter {
	return fromIndex(q.index() + n)
}

// Sub returns the number of quarters from o to q.
func (q Quarter) Sub(o Quarter) int {
	return (q.Year()-o.Year())*4 + (q.Month()-o.Month())/3
}

// End returns the last calendar day of the quarter in UTC.
func (q Quarter) End() time.Time {
	return time.Date(q.Year(), time.Month(q.Month())+1, 0, 0, 0, 0, 0, time.UTC)
}

func (q Quarter) String() string {
	return strconv.Itoa(int(q))
}

// Range returns every quarter from..to inclusive in ascending order. It
// returns nil when from is after to.
func Range(from, to Quarter) []Quarter {
	if from > to {
		return nil
	}
	n := to.Sub(from) + 1
	out := make([]Quarter, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, from.Add(i))
	}
	return out
}

// Min returns the earlier of two keys.
func Min(a, b Quarter) Quarter {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of two keys.
func Max(a, b Quarter) Quarter {
	if a > b {
		return a
	}
	return b
}
