package availability

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/avstrong/rentals/internal/logger"
)

const (
	dayKeyLayout = "2006-01-02"

	// MaxSuggestions caps the alternative ranges offered for a conflicting request.
	MaxSuggestions = 6
)

var (
	suggestionOffsets = []int{7, 14, 30}
	defaultDurations  = []int{3, 5, 7}
)

// DateRange is the half-open interval [From, To) in whole UTC days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: Day(from), To: Day(to)}
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r DateRange) Valid() bool {
	return !r.From.IsZero() && r.To.After(r.From)
}

func (r DateRange) Overlaps(o DateRange) bool {
	return r.From.Before(o.To) && o.From.Before(r.To)
}

func (r DateRange) Nights() int {
	return int(r.To.Sub(r.From) / (24 * time.Hour))
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.From.Format(dayKeyLayout), r.To.Format(dayKeyLayout))
}

// Interval is a committed stay of a paid booking.
type Interval struct {
	BookingID  string    `json:"booking_id"`
	PropertyID string    `json:"property_id"`
	Range      DateRange `json:"range"`
}

// Bounds are a package's duration constraints in nights; zero means unknown.
type Bounds struct {
	MinNights int
	MaxNights int
}

// Conflicts returns the intervals intersecting r, ignoring the excluded booking.
func Conflicts(intervals []Interval, r DateRange, excludeBookingID string) []Interval {
	var out []Interval

	for _, in := range intervals {
		if excludeBookingID != "" && in.BookingID == excludeBookingID {
			continue
		}

		if in.Range.Overlaps(r) {
			out = append(out, in)
		}
	}

	return out
}

func Overlaps(intervals []Interval, r DateRange, excludeBookingID string) bool {
	return len(Conflicts(intervals, r, excludeBookingID)) > 0
}

func candidateDurations(b Bounds) []int {
	minN, maxN := b.MinNights, b.MaxNights
	if maxN > 0 && minN > maxN {
		maxN = 0
	}

	var durations []int

	switch {
	case minN > 0 && maxN > 0:
		durations = []int{minN, (minN + maxN) / 2, maxN}
	case minN > 0:
		durations = []int{minN, minN + 2, minN + 4}
	case maxN > 0:
		durations = []int{1, (1 + maxN) / 2, maxN}
	default:
		durations = slices.Clone(defaultDurations)
	}

	slices.Sort(durations)

	return slices.Compact(durations)
}

func bookedDays(intervals []Interval, excludeBookingID string) map[string]struct{} {
	days := make(map[string]struct{})

	for _, in := range intervals {
		if excludeBookingID != "" && in.BookingID == excludeBookingID {
			continue
		}

		for d := in.Range.From; d.Before(in.Range.To); d = d.AddDate(0, 0, 1) {
			days[d.Format(dayKeyLayout)] = struct{}{}
		}
	}

	return days
}

func free(days map[string]struct{}, r DateRange) bool {
	for d := r.From; d.Before(r.To); d = d.AddDate(0, 0, 1) {
		if _, ok := days[d.Format(dayKeyLayout)]; ok {
			return false
		}
	}

	return true
}

// Suggest proposes up to MaxSuggestions free ranges starting at fixed offsets from today.
// The search is greedy and bounded so the options stay easy to explain.
func Suggest(intervals []Interval, today time.Time, b Bounds, excludeBookingID string) []DateRange {
	days := bookedDays(intervals, excludeBookingID)
	start := Day(today)

	seen := make(map[string]struct{})

	var out []DateRange

	for _, offset := range suggestionOffsets {
		from := start.AddDate(0, 0, offset)

		for _, nights := range candidateDurations(b) {
			r := DateRange{From: from, To: from.AddDate(0, 0, nights)}
			if _, ok := seen[r.String()]; ok || !free(days, r) {
				continue
			}

			seen[r.String()] = struct{}{}
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b DateRange) int {
		if c := a.From.Compare(b.From); c != 0 {
			return c
		}

		return a.To.Compare(b.To)
	})

	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}

	return out
}

type Result struct {
	Available   bool        `json:"available"`
	Conflicts   []Interval  `json:"conflicts,omitempty"`
	Suggestions []DateRange `json:"suggestions"`
}

type storage interface {
	ListIntervals(ctx context.Context, propertyID string) ([]Interval, error)
}

type observer interface {
	ObserveSuggestions(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveSuggestions(int) {}

type Config struct {
	L        *logger.Logger
	Storage  storage
	Observer observer
	Now      func() time.Time
}

type Engine struct {
	l        *logger.Logger
	storage  storage
	observer observer
	now      func() time.Time
}

func New(conf Config) *Engine {
	e := &Engine{l: conf.L, storage: conf.Storage, observer: conf.Observer, now: conf.Now}

	if e.l == nil {
		e.l = logger.Nop()
	}

	if e.observer == nil {
		e.observer = nopObserver{}
	}

	if e.now == nil {
		e.now = time.Now
	}

	return e
}

// Check answers whether r is free on the property and suggests alternatives when it is not.
func (e *Engine) Check(ctx context.Context, propertyID string, r DateRange, b Bounds, excludeBookingID string) (*Result, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("check range %s: %w", r, ErrInvalidRange)
	}

	intervals, err := e.storage.ListIntervals(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list intervals of property %s: %w", propertyID, err)
	}

	conflicts := Conflicts(intervals, r, excludeBookingID)
	if len(conflicts) == 0 {
		return &Result{Available: true, Suggestions: []DateRange{}}, nil
	}

	suggestions := Suggest(intervals, e.now(), b, excludeBookingID)
	e.observer.ObserveSuggestions(len(suggestions))

	e.l.LogDebugf("Range %s on property %s conflicts with %d booking(s), %d suggestion(s)",
		r, propertyID, len(conflicts), len(suggestions))

	return &Result{Available: false, Conflicts: conflicts, Suggestions: suggestions}, nil
}

// Ensure returns a ConflictError when r is not free.
func (e *Engine) Ensure(ctx context.Context, propertyID string, r DateRange, b Bounds, excludeBookingID string) error {
	res, err := e.Check(ctx, propertyID, r, b, excludeBookingID)
	if err != nil {
		return err
	}

	if res.Available {
		return nil
	}

	return &ConflictError{
		PropertyID:  propertyID,
		Requested:   r,
		Conflicts:   res.Conflicts,
		Suggestions: res.Suggestions,
	}
}
