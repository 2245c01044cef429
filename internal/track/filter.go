// internal/track/filter.go
package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// IDColumn is never filtered on.
const IDColumn = "track_id"

var (
	// ErrUnknownProperty indicates a bound names a property the rows do not have
	ErrUnknownProperty = errors.New("unknown filter property")
	// ErrInvalidRange indicates a bound whose minimum exceeds its maximum
	ErrInvalidRange = errors.New("filter minimum must not exceed maximum")
	// ErrInvalidBound indicates a filter expression that cannot be parsed
	ErrInvalidBound = errors.New("filter must look like name=min:max")
)

// Range is an inclusive interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in the closed interval.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// rangeJSON leaves out unbounded sides, which JSON cannot represent.
type rangeJSON struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (r Range) MarshalJSON() ([]byte, error) {
	var out rangeJSON
	if !math.IsInf(r.Min, 0) {
		out.Min = &r.Min
	}
	if !math.IsInf(r.Max, 0) {
		out.Max = &r.Max
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Range) UnmarshalJSON(data []byte) error {
	var in rangeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Min, r.Max = math.Inf(-1), math.Inf(1)
	if in.Min != nil {
		r.Min = *in.Min
	}
	if in.Max != nil {
		r.Max = *in.Max
	}
	return nil
}

// Bounds maps property names to the range a row must fall in.
type Bounds map[string]Range

// Clone returns an independent copy
func (b Bounds) Clone() Bounds {
	if b == nil {
		return Bounds{}
	}
	return maps.Clone(b)
}

// Names returns the bounded property names in sorted order, without the id column.
func (b Bounds) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		if strings.TrimSpace(name) == IDColumn {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Row is anything with a track id and named numeric properties.
type Row interface {
	ID() int
	Property(name string) (float64, bool)
}

// Select returns the ids of the rows that satisfy every bound, in row order.
// An empty Bounds selects every row.
func Select[R Row](rows []R, bounds Bounds) ([]int, error) {
	names := bounds.Names()
	for _, name := range names {
		if r := bounds[name]; r.Min > r.Max {
			return nil, fmt.Errorf("%w: %s [%v, %v]", ErrInvalidRange, name, r.Min, r.Max)
		}
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, name := range names {
			v, ok := row.Property(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
			}
			if !bounds[name].Contains(v) {
				keep = false
				break
			}
		}
		if keep {
			ids = append(ids, row.ID())
		}
	}
	return ids, nil
}

// ParseBounds parses expressions of the form name=min:max. Either side of
// the colon may be empty to leave that side unbounded.
func ParseBounds(exprs []string) (Bounds, error) {
	bounds := Bounds{}
	for _, expr := range exprs {
		name, span, ok := strings.Cut(expr, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBound, expr)
		}
		lo, hi, ok := strings.Cut(span, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBound, expr)
		}

		r := Range{Min: math.Inf(-1), Max: math.Inf(1)}
		var err error
		if s := strings.TrimSpace(lo); s != "" {
			if r.Min, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBound, expr, err)
			}
		}
		if s := strings.TrimSpace(hi); s != "" {
			if r.Max, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBound, expr, err)
			}
		}
		if r.Min > r.Max {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, expr)
		}
		bounds[name] = r
	}
	return bounds, nil
}
