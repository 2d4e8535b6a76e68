package timeseq

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval represents an ISO 8601 duration such as "PT3H", "P1D" or "P1M".
// Calendar components (years, months, days) advance with calendar arithmetic
// so that monthly composites land on the same day of each month.
type Interval struct {
	Years  int
	Months int
	Days   int
	Clock  time.Duration // hours, minutes, seconds
}

// ParseInterval parses an ISO 8601 duration string.
// Supported designators: Y, M, D in the date part and H, M, S in the time part.
func ParseInterval(s string) (Interval, error) {
	orig := s
	var iv Interval

	if !strings.HasPrefix(s, "P") {
		return iv, fmt.Errorf("invalid interval %q: must start with 'P'", orig)
	}
	s = s[1:]

	datePart := s
	timePart := ""
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart = s[:i]
		timePart = s[i+1:]
		if timePart == "" {
			return iv, fmt.Errorf("invalid interval %q: empty time part", orig)
		}
	}
	if datePart == "" && timePart == "" {
		return iv, fmt.Errorf("invalid interval %q: no components", orig)
	}

	if err := parseComponents(datePart, map[byte]*int{
		'Y': &iv.Years,
		'M': &iv.Months,
		'D': &iv.Days,
	}, nil, orig); err != nil {
		return Interval{}, err
	}

	clock := map[byte]time.Duration{
		'H': time.Hour,
		'M': time.Minute,
		'S': time.Second,
	}
	if err := parseComponents(timePart, nil, func(designator byte, value int) error {
		unit, ok := clock[designator]
		if !ok {
			return fmt.Errorf("invalid interval %q: unknown designator %q", orig, string(designator))
		}
		iv.Clock += time.Duration(value) * unit
		return nil
	}, orig); err != nil {
		return Interval{}, err
	}

	if iv.IsZero() {
		return Interval{}, fmt.Errorf("invalid interval %q: zero duration", orig)
	}
	return iv, nil
}

// parseComponents walks a run of number+designator pairs. Either fields or
// apply is consulted for each designator, never both.
func parseComponents(part string, fields map[byte]*int, apply func(byte, int) error, orig string) error {
	for len(part) > 0 {
		i := 0
		for i < len(part) && part[i] >= '0' && part[i] <= '9' {
			i++
		}
		if i == 0 || i == len(part) {
			return fmt.Errorf("invalid interval %q: malformed component %q", orig, part)
		}
		value, err := strconv.Atoi(part[:i])
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", orig, err)
		}
		designator := part[i]
		if fields != nil {
			field, ok := fields[designator]
			if !ok {
				return fmt.Errorf("invalid interval %q: unknown designator %q", orig, string(designator))
			}
			*field += value
		} else if err := apply(designator, value); err != nil {
			return err
		}
		part = part[i+1:]
	}
	return nil
}

// IsZero reports whether the interval has no components at all.
func (iv Interval) IsZero() bool {
	return iv.Years == 0 && iv.Months == 0 && iv.Days == 0 && iv.Clock == 0
}

// AddTo returns t advanced by one interval.
func (iv Interval) AddTo(t time.Time) time.Time {
	if iv.Years != 0 || iv.Months != 0 || iv.Days != 0 {
		t = t.AddDate(iv.Years, iv.Months, iv.Days)
	}
	return t.Add(iv.Clock)
}

// String renders the interval back in ISO 8601 form.
func (iv Interval) String() string {
	var b strings.Builder
	b.WriteByte('P')
	if iv.Years != 0 {
		fmt.Fprintf(&b, "%dY", iv.Years)
	}
	if iv.Months != 0 {
		fmt.Fprintf(&b, "%dM", iv.Months)
	}
	if iv.Days != 0 {
		fmt.Fprintf(&b, "%dD", iv.Days)
	}
	if iv.Clock != 0 {
		b.WriteByte('T')
		rem := iv.Clock
		if h := rem / time.Hour; h != 0 {
			fmt.Fprintf(&b, "%dH", h)
			rem -= h * time.Hour
		}
		if m := rem / time.Minute; m != 0 {
			fmt.Fprintf(&b, "%dM", m)
			rem -= m * time.Minute
		}
		if s := rem / time.Second; s != 0 {
			fmt.Fprintf(&b, "%dS", s)
		}
	}
	return b.String()
}
