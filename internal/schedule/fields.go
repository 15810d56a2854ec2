package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cadence/internal/period"
)

// Fields holds the calendar sets of a Regular sequence. A nil or empty slice
// is a wildcard. Weekdays use time.Weekday numbering (0 = Sunday).
type Fields struct {
	Minutes   []int
	Hours     []int
	Monthdays []int
	Weekdays  []int
	Months    []int
}

type fieldDomain struct {
	name     string
	min, max int
	values   func(*Fields) *[]int
}

// domains is in field-set text order: minute:hour:monthday:weekday:month.
var domains = []fieldDomain{
	{"minute", 0, 59, func(f *Fields) *[]int { return &f.Minutes }},
	{"hour", 0, 23, func(f *Fields) *[]int { return &f.Hours }},
	{"monthday", 1, 31, func(f *Fields) *[]int { return &f.Monthdays }},
	{"weekday", 0, 6, func(f *Fields) *[]int { return &f.Weekdays }},
	{"month", 1, 12, func(f *Fields) *[]int { return &f.Months }},
}

// Validate checks every value against its domain.
func (f Fields) Validate() error {
	for _, d := range domains {
		for _, v := range *d.values(&f) {
			if v < d.min || v > d.max {
				return &RangeError{Field: d.name, Value: int64(v), Min: int64(d.min), Max: int64(d.max)}
			}
		}
	}
	return nil
}

// normalized returns a copy with every set sorted and de-duplicated.
func (f Fields) normalized() Fields {
	var out Fields
	for _, d := range domains {
		src := *d.values(&f)
		if len(src) == 0 {
			continue
		}
		cp := append([]int(nil), src...)
		sort.Ints(cp)
		n := 0
		for i, v := range cp {
			if i > 0 && v == cp[n-1] {
				continue
			}
			cp[n] = v
			n++
		}
		*d.values(&out) = cp[:n]
	}
	return out
}

// String renders the field-set text form.
func (f Fields) String() string {
	parts := make([]string, len(domains))
	for i, d := range domains {
		vals := *d.values(&f)
		strs := make([]string, len(vals))
		for j, v := range vals {
			strs[j] = strconv.Itoa(v)
		}
		parts[i] = "[" + strings.Join(strs, ",") + "]"
	}
	return strings.Join(parts, ":")
}

// ParseFields parses "[m,...]:[h,...]:[monthday,...]:[weekday,...]:[month,...]".
// An empty bracket is a wildcard. Syntax problems yield *period.FormatError,
// out-of-domain values *RangeError.
func ParseFields(text string) (Fields, error) {
	raw := strings.Split(text, ":")
	if len(raw) != len(domains) {
		return Fields{}, &period.FormatError{Input: text, Reason: fmt.Sprintf("want %d bracketed lists, got %d", len(domains), len(raw))}
	}
	var f Fields
	for i, d := range domains {
		part := strings.TrimSpace(raw[i])
		if len(part) < 2 || part[0] != '[' || part[len(part)-1] != ']' {
			return Fields{}, &period.FormatError{Input: text, Reason: fmt.Sprintf("%s list %q is not bracketed", d.name, part)}
		}
		body := strings.TrimSpace(part[1 : len(part)-1])
		if body == "" {
			continue
		}
		var vals []int
		for _, item := range strings.Split(body, ",") {
			item = strings.TrimSpace(item)
			v, err := strconv.Atoi(item)
			if err != nil {
				return Fields{}, &period.FormatError{Input: text, Reason: fmt.Sprintf("%s value %q is not an integer", d.name, item)}
			}
			vals = append(vals, v)
		}
		*d.values(&f) = vals
	}
	if err := f.Validate(); err != nil {
		return Fields{}, err
	}
	return f, nil
}

// fieldSet is a bitmask of allowed values; zero means wildcard.
type fieldSet uint64

func newFieldSet(vals []int) fieldSet {
	var s fieldSet
	for _, v := range vals {
		s |= 1 << uint(v)
	}
	return s
}

func (s fieldSet) wildcard() bool { return s == 0 }

func (s fieldSet) has(v int) bool {
	return s == 0 || s&(1<<uint(v)) != 0
}
