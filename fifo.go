package transcode

import (
	"fmt"
	"math"

	"github.com/pion/logging"
)

// AudioFifo repacks variable-size audio into fixed-size frames with evenly
// spaced timestamps.
//
// The timestamp of the oldest buffered sample is tracked as a running
// base. Each write that carries a timestamp re-derives the base; drift
// within 200 ms is treated as jitter and ignored, anything larger snaps
// the base to the new value. AudioFifo is not safe for concurrent use.
type AudioFifo struct {
	log logging.LeveledLogger

	initialized bool
	format      SampleFormat
	channels    int
	rate        int

	planes [][]byte
	size   int // buffered samples per channel

	timebase float64 // milliseconds per sample
	base     float64
	hasBase  bool
}

// NewAudioFifo creates an empty fifo.
func NewAudioFifo(lf logging.LoggerFactory) *AudioFifo {
	return &AudioFifo{log: newLogger(lf, "fifo")}
}

// Size returns the number of buffered samples per channel.
func (f *AudioFifo) Size() int { return f.size }

// Write appends frame. The first write fixes the sample format and channel
// count; later frames must match. Frames whose planes are shorter than
// their sample count are rejected with ErrInvalidData.
func (f *AudioFifo) Write(frame *AudioFrame) error {
	if err := checkPlanes(frame); err != nil {
		return err
	}
	if !f.initialized {
		f.initialized = true
		f.format = frame.Format
		f.channels = frame.Channels
		f.planes = make([][]byte, planeCount(frame.Format, frame.Channels))
	} else if frame.Format != f.format || frame.Channels != f.channels {
		return fmt.Errorf("%w: fifo holds %s/%d, got %s/%d",
			ErrInvalidData, f.format, f.channels, frame.Format, frame.Channels)
	}
	if frame.SampleRate != f.rate && frame.SampleRate > 0 {
		f.rate = frame.SampleRate
		f.timebase = 1000.0 / float64(f.rate)
	}

	if frame.PTS != NoPTS {
		tsp := float64(frame.PTS) - f.timebase*float64(f.size)
		if !f.hasBase || math.Abs(tsp-f.base) > fifoRebaseMs {
			if f.hasBase {
				f.log.Debugf("rebase %.1f -> %.1f", f.base, tsp)
			}
			f.base = tsp
			f.hasBase = true
		}
	} else {
		f.hasBase = false
	}

	n := planeSize(f.format, f.channels, frame.Samples)
	for i := range f.planes {
		f.planes[i] = append(f.planes[i], frame.Data[i][:n]...)
	}
	f.size += frame.Samples
	return nil
}

func checkPlanes(frame *AudioFrame) error {
	if frame.Samples < 0 {
		return fmt.Errorf("%w: %d samples", ErrInvalidData, frame.Samples)
	}
	planes := planeCount(frame.Format, frame.Channels)
	if len(frame.Data) < planes {
		return fmt.Errorf("%w: %d planes, want %d", ErrInvalidData, len(frame.Data), planes)
	}
	n := planeSize(frame.Format, frame.Channels, frame.Samples)
	for i := 0; i < planes; i++ {
		if len(frame.Data[i]) < n {
			return fmt.Errorf("%w: plane %d has %d bytes, want %d", ErrInvalidData, i, len(frame.Data[i]), n)
		}
	}
	return nil
}

// Read removes exactly n samples per channel. It returns false when fewer
// than n are buffered.
func (f *AudioFifo) Read(n int) (*AudioFrame, bool) {
	if n <= 0 || f.size < n {
		return nil, false
	}
	bytes := planeSize(f.format, f.channels, n)
	out := &AudioFrame{
		Format:     f.format,
		SampleRate: f.rate,
		Channels:   f.channels,
		Samples:    n,
		Data:       make([][]byte, len(f.planes)),
		PTS:        NoPTS,
	}
	for i, p := range f.planes {
		out.Data[i] = append([]byte(nil), p[:bytes]...)
		f.planes[i] = p[:copy(p, p[bytes:])]
	}
	f.size -= n

	if f.hasBase {
		out.PTS = int64(math.Round(f.base))
		f.base += float64(n) * f.timebase
	}
	return out, true
}
