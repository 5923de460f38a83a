package forecast

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrLookup is wrapped by every missing-timestamp failure.
var ErrLookup = errors.New("forecast: no entry for timestamp")

// LookupError identifies the series and timestamp that could not be resolved.
type LookupError struct {
	Series string
	At     time.Time
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("forecast: series %q has no entry at %s", e.Series, e.At.UTC().Format(time.RFC3339))
}

func (e *LookupError) Unwrap() error { return ErrLookup }

// Slot gathers every value the builder needs for one time slot. LoadW follows
// the consumption-negative convention, PVW is positive generation and prices
// are expressed per kWh.
type Slot struct {
	Time      time.Time `json:"time"`
	LoadW     float64   `json:"load_w"`
	PVW       float64   `json:"pv_w"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
}

// NetW is the power the site needs from elsewhere, positive when demand
// exceeds generation.
func (s Slot) NetW() float64 { return -(s.LoadW + s.PVW) }

// Provider returns n consecutive slots starting at start and spaced by period.
type Provider interface {
	Horizon(start time.Time, period time.Duration, n int) ([]Slot, error)
}

// Point is a single timestamped value.
type Point struct {
	Time  time.Time `json:"time" yaml:"time"`
	Value float64   `json:"value" yaml:"value"`
}

// Series is an immutable exact-match lookup table.
type Series struct {
	name   string
	values map[int64]float64
	first  time.Time
	last   time.Time
}

// NewSeries indexes pts by timestamp. Duplicate timestamps are rejected.
func NewSeries(name string, pts []Point) (Series, error) {
	s := Series{name: name, values: make(map[int64]float64, len(pts))}
	for i, p := range pts {
		k := p.Time.UnixNano()
		if _, dup := s.values[k]; dup {
			return Series{}, fmt.Errorf("forecast: series %q has duplicate timestamp %s", name, p.Time.UTC().Format(time.RFC3339))
		}
		s.values[k] = p.Value
		if i == 0 || p.Time.Before(s.first) {
			s.first = p.Time
		}
		if i == 0 || p.Time.After(s.last) {
			s.last = p.Time
		}
	}
	return s, nil
}

// MustSeries is NewSeries for fixtures; it panics on duplicates.
func MustSeries(name string, pts []Point) Series {
	s, err := NewSeries(name, pts)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the series label used in lookup errors.
func (s Series) Name() string { return s.name }

// Len returns the number of points.
func (s Series) Len() int { return len(s.values) }

// Span returns the first and last timestamps of the series.
func (s Series) Span() (time.Time, time.Time) { return s.first, s.last }

// At returns the value stored for t.
func (s Series) At(t time.Time) (float64, error) {
	v, ok := s.values[t.UnixNano()]
	if !ok {
		return 0, &LookupError{Series: s.name, At: t}
	}
	return v, nil
}

// Points returns the series sorted by time.
func (s Series) Points() []Point {
	out := make([]Point, 0, len(s.values))
	for k, v := range s.values {
		out = append(out, Point{Time: time.Unix(0, k).UTC(), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Set bundles the four series required by the builder. It implements Provider.
type Set struct {
	Load Series
	PV   Series
	Buy  Series
	Sell Series
}

// Horizon resolves every series for each slot timestamp.
func (s Set) Horizon(start time.Time, period time.Duration, n int) ([]Slot, error) {
	if n <= 0 {
		return nil, fmt.Errorf("forecast: horizon must contain at least one slot, got %d", n)
	}
	if period <= 0 {
		return nil, fmt.Errorf("forecast: period must be positive, got %s", period)
	}
	slots := make([]Slot, n)
	for i := range slots {
		t := start.Add(time.Duration(i) * period)
		sl := Slot{Time: t}
		var err error
		if sl.LoadW, err = s.Load.At(t); err != nil {
			return nil, err
		}
		if sl.PVW, err = s.PV.At(t); err != nil {
			return nil, err
		}
		if sl.BuyPrice, err = s.Buy.At(t); err != nil {
			return nil, err
		}
		if sl.SellPrice, err = s.Sell.At(t); err != nil {
			return nil, err
		}
		slots[i] = sl
	}
	return slots, nil
}

// Constant builds a Set with the same values at every period step of
// [start, start+n*period). It is used by fixtures and the CLI's dry runs.
func Constant(start time.Time, period time.Duration, n int, loadW, pvW, buy, sell float64) Set {
	return Profile(start, period, fill(n, loadW), fill(n, pvW), fill(n, buy), fill(n, sell))
}

// Profile builds a Set from per-slot slices. All slices must have equal length.
func Profile(start time.Time, period time.Duration, load, pv, buy, sell []float64) Set {
	mk := func(name string, vals []float64) Series {
		pts := make([]Point, len(vals))
		for i, v := range vals {
			pts[i] = Point{Time: start.Add(time.Duration(i) * period), Value: v}
		}
		return MustSeries(name, pts)
	}
	return Set{Load: mk("load", load), PV: mk("pv", pv), Buy: mk("buy_price", buy), Sell: mk("sell_price", sell)}
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
