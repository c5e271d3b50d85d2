package buffer

import (
	"strings"

	"github.com/wippyai/filter-bridge/errors"
)

// AxisOrder places the channel axis within the dimension array.
// Both orders describe the same interleaved memory; only the record order differs.
type AxisOrder uint8

const (
	// ChannelLast orders axes as width, height, channel.
	ChannelLast AxisOrder = iota
	// ChannelFirst orders axes as channel, width, height.
	ChannelFirst
)

func (o AxisOrder) String() string {
	if o == ChannelFirst {
		return "channel_first"
	}
	return "channel_last"
}

// ParseAxisOrder parses "channel_last" or "channel_first". Empty selects ChannelLast.
func ParseAxisOrder(s string) (AxisOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "channel_last", "xyc":
		return ChannelLast, nil
	case "channel_first", "cxy":
		return ChannelFirst, nil
	default:
		return ChannelLast, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(s).
			Detail("unknown axis order %q", s).
			Build()
	}
}

// Axis names a logical image axis.
type Axis uint8

const (
	X Axis = iota
	Y
	C
)

// Option configures buffer construction.
type Option func(*options)

type options struct {
	order AxisOrder
}

// WithAxisOrder selects where the channel axis is placed.
func WithAxisOrder(o AxisOrder) Option {
	return func(opts *options) {
		opts.order = o
	}
}

func buildOptions(opts []Option) options {
	o := options{order: ChannelLast}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// layout builds the dimension records for an interleaved image.
// channels below 2 produce a rank 2 layout with unit channel stride.
func layout(width, height, channels int, order AxisOrder) []Dimension {
	c := max(channels, 1)
	x := Dimension{Extent: int32(width), Stride: int32(c)}
	y := Dimension{Extent: int32(height), Stride: int32(c * width)}
	if channels < 2 {
		return []Dimension{x, y}
	}
	ch := Dimension{Extent: int32(channels), Stride: 1}
	if order == ChannelFirst {
		return []Dimension{ch, x, y}
	}
	return []Dimension{x, y, ch}
}

func axisIndex(rank int, order AxisOrder, a Axis) (int, bool) {
	switch rank {
	case 2:
		switch a {
		case X:
			return 0, true
		case Y:
			return 1, true
		}
		return 0, false
	case 3:
		idx := map[AxisOrder][3]int{
			ChannelLast:  {0, 1, 2},
			ChannelFirst: {1, 2, 0},
		}[order]
		if a > C {
			return 0, false
		}
		return idx[a], true
	}
	return 0, false
}
