package engine

import "time"

// Policy defaults.
const (
	DefaultThreshold  = 0.5
	DefaultTopN       = 5
	DefaultHoursBack  = 24
	DefaultDateLayout = "2006/1/2"
)

// Options tunes matching and summary rendering.
type Options struct {
	// Threshold is the similarity a group must strictly exceed to match.
	Threshold float64
	// TopN caps the number of matches returned.
	TopN int
	// HoursBack is used when a request does not give a positive window.
	HoursBack int
	// Location is where hours are read from timestamps and rendered.
	Location *time.Location
	// DateLayout renders the calendar date in the summary.
	DateLayout string
}

// DefaultOptions returns the production policy.
func DefaultOptions() Options {
	return Options{
		Threshold:  DefaultThreshold,
		TopN:       DefaultTopN,
		HoursBack:  DefaultHoursBack,
		Location:   time.Local,
		DateLayout: DefaultDateLayout,
	}
}

// withDefaults fills zero fields. A zero Threshold is kept: it is a valid
// policy that matches everything above 0.
func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.HoursBack <= 0 {
		o.HoursBack = DefaultHoursBack
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.DateLayout == "" {
		o.DateLayout = DefaultDateLayout
	}
	return o
}
