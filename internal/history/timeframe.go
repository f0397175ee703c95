package history

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a display window for a synthesized series. The set is
// closed; unknown values are rejected at the API boundary.
type Timeframe string

const (
	Timeframe1H  Timeframe = "1h"
	Timeframe24H Timeframe = "24h"
	Timeframe7D  Timeframe = "7d"
	Timeframe30D Timeframe = "30d"
	Timeframe1Y  Timeframe = "1y"
)

// FrameConfig fixes the shape of one timeframe's series.
type FrameConfig struct {
	// Points is the number of points in the series.
	Points int
	// Interval is the fixed spacing between consecutive points.
	Interval time.Duration
	// MaxStep bounds each point's deviation from its interpolated base
	// price, as a fraction of that base.
	MaxStep float64
	// SpreadMin/SpreadMax band the start price's offset from the current
	// price, as a fraction.
	SpreadMin float64
	SpreadMax float64
	// SpreadBelow forces the start price below the current price.
	// Long ranges use it to model growth instead of a symmetric wander.
	SpreadBelow bool
}

var defaultFrames = map[Timeframe]FrameConfig{
	Timeframe1H:  {Points: 60, Interval: time.Minute, MaxStep: 0.002, SpreadMin: 0.002, SpreadMax: 0.006},
	Timeframe24H: {Points: 24, Interval: time.Hour, MaxStep: 0.01, SpreadMin: 0.02, SpreadMax: 0.06},
	Timeframe7D:  {Points: 168, Interval: time.Hour, MaxStep: 0.02, SpreadMin: 0.05, SpreadMax: 0.15},
	Timeframe30D: {Points: 30, Interval: 24 * time.Hour, MaxStep: 0.05, SpreadMin: 0.15, SpreadMax: 0.45},
	Timeframe1Y:  {Points: 365, Interval: 24 * time.Hour, MaxStep: 0.15, SpreadMin: 0.40, SpreadMax: 0.50, SpreadBelow: true},
}

// Timeframes lists the supported windows from shortest to longest.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1H, Timeframe24H, Timeframe7D, Timeframe30D, Timeframe1Y}
}

// Parse returns the Timeframe for a user-supplied string.
func Parse(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultFrames[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}
