package window

import (
	"fmt"
	"strings"
	"time"

	"ctgmonitor/internal/domain"
)

const (
	// DefaultSize is the trailing span kept in windowed mode.
	DefaultSize = 300 * time.Second
	// DefaultMaxPoints caps the number of points in one frame.
	DefaultMaxPoints = 1000
)

// Mode selects how samples are reduced to a frame.
type Mode string

const (
	// ModeWindowed keeps the trailing Size span capped at MaxPoints.
	ModeWindowed Mode = "windowed"
	// ModeFull keeps every buffered sample.
	ModeFull Mode = "full"
)

// ParseMode normalizes mode name.
// Params: raw mode; empty selects windowed.
// Returns: mode or error for unknown names.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeWindowed:
		return ModeWindowed, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unsupported window mode %q", raw)
	}
}

// Options configures extraction.
type Options struct {
	Size      time.Duration
	MaxPoints int
	Mode      Mode
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	if o.Mode == "" {
		o.Mode = ModeWindowed
	}
	return o
}

// Frame is chart-ready series data rebased to the first retained sample.
// Params: X offsets in seconds from Origin and matching Y values.
// Returns: parallel slices of equal length; both empty when nothing is retained.
type Frame struct {
	Origin int64     `json:"origin"`
	X      []int64   `json:"x"`
	Y      []float64 `json:"y"`
}

// Len returns number of points.
func (f Frame) Len() int {
	return len(f.X)
}

// Extract reduces ordered samples to one frame.
// Params: samples oldest first, options, and current instant.
// Returns: frame keeping samples with time_sec >= now-Size, at most MaxPoints newest, rebased to the first kept.
func Extract(samples []domain.Sample, opts Options, now time.Time) Frame {
	opts = opts.normalized()
	kept := samples
	if opts.Mode == ModeWindowed {
		start := float64(now.UnixNano())/float64(time.Second) - opts.Size.Seconds()
		kept = make([]domain.Sample, 0, len(samples))
		for _, sample := range samples {
			if float64(sample.TimeSec) >= start {
				kept = append(kept, sample)
			}
		}
		if len(kept) > opts.MaxPoints {
			kept = kept[len(kept)-opts.MaxPoints:]
		}
	}
	return rebase(kept)
}

func rebase(samples []domain.Sample) Frame {
	frame := Frame{X: make([]int64, len(samples)), Y: make([]float64, len(samples))}
	if len(samples) == 0 {
		return frame
	}
	frame.Origin = samples[0].TimeSec
	for i, sample := range samples {
		frame.X[i] = sample.TimeSec - frame.Origin
		frame.Y[i] = sample.Value
	}
	return frame
}
