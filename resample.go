package transcode

import (
	"fmt"

	"github.com/pion/logging"
)

// Resampler converts audio to a fixed sample format, channel count and
// rate. Frames that already match are returned as is.
type Resampler struct {
	format   SampleFormat
	channels int
	rate     int

	ctx  *swrContext
	pool *framePool
	log  logging.LeveledLogger
}

// swrContext holds conversion state for one source shape. Interpolation
// state carries across calls so chunk boundaries stay continuous.
type swrContext struct {
	srcFormat   SampleFormat
	srcChannels int
	srcRate     int

	ratio float64   // source samples per output sample
	pos   float64   // next output position relative to the current chunk
	prev  []float32 // last remixed source sample per output channel
	mixed [][]float32
}

// NewResampler creates a resampler targeting the given parameters.
func NewResampler(format SampleFormat, channels, rate int, lf logging.LoggerFactory) *Resampler {
	return &Resampler{
		format:   format,
		channels: channels,
		rate:     rate,
		pool:     newFramePool(8),
		log:      newLogger(lf, "resample"),
	}
}

// Convert returns frame converted to the target parameters. The result is
// frame itself when no conversion is needed; otherwise it is drawn from
// the resampler's pool and may be handed back with Release.
func (r *Resampler) Convert(frame *AudioFrame) (*AudioFrame, error) {
	if frame.Format == r.format && frame.Channels == r.channels && frame.SampleRate == r.rate {
		return frame, nil
	}
	if frame.Channels <= 0 || frame.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: audio frame %d ch @ %d Hz", ErrInvalidData, frame.Channels, frame.SampleRate)
	}
	if r.ctx == nil || r.ctx.srcFormat != frame.Format || r.ctx.srcChannels != frame.Channels || r.ctx.srcRate != frame.SampleRate {
		r.ctx = &swrContext{
			srcFormat:   frame.Format,
			srcChannels: frame.Channels,
			srcRate:     frame.SampleRate,
			ratio:       float64(frame.SampleRate) / float64(r.rate),
		}
		r.log.Infof("swr %s/%d/%d -> %s/%d/%d",
			frame.Format, frame.Channels, frame.SampleRate, r.format, r.channels, r.rate)
	}
	return r.ctx.convert(r, frame), nil
}

// Release returns a frame produced by Convert to the pool. Passing a frame
// that Convert returned unchanged is harmless as long as the caller owns it.
func (r *Resampler) Release(frame *AudioFrame) {
	r.pool.put(frame)
}

func (c *swrContext) convert(r *Resampler, in *AudioFrame) *AudioFrame {
	n := in.Samples
	if cap(c.mixed) < r.channels {
		c.mixed = make([][]float32, r.channels)
	}
	c.mixed = c.mixed[:r.channels]
	for ch := range c.mixed {
		if cap(c.mixed[ch]) < n {
			c.mixed[ch] = make([]float32, n)
		}
		c.mixed[ch] = c.mixed[ch][:n]
	}
	remix(in, c.mixed)

	if c.prev == nil {
		c.prev = make([]float32, r.channels)
		if n > 0 {
			for ch := range c.prev {
				c.prev[ch] = c.mixed[ch][0]
			}
		}
	}

	// Count outputs first so the pool can size the frame.
	outN := 0
	if n > 0 {
		for t := c.pos; t <= float64(n-1); t += c.ratio {
			outN++
		}
	}
	out := r.pool.get(r.format, r.channels, r.rate, outN)
	out.PTS = in.PTS

	t := c.pos
	for k := 0; k < outN; k++ {
		for ch := 0; ch < r.channels; ch++ {
			putSample(out, ch, k, c.interp(ch, t))
		}
		t += c.ratio
	}
	if n > 0 {
		c.pos = t - float64(n)
		for ch := range c.prev {
			c.prev[ch] = c.mixed[ch][n-1]
		}
	}
	return out
}

// interp samples channel ch at fractional position t in [-1, n-1], where
// position -1 is the last sample of the previous chunk.
func (c *swrContext) interp(ch int, t float64) float32 {
	src := c.mixed[ch]
	i := int(t)
	if t < 0 {
		i = -1
	}
	frac := float32(t - float64(i))
	a := c.prev[ch]
	if i >= 0 {
		a = src[i]
	}
	if i+1 >= len(src) || frac == 0 {
		return a
	}
	return a + (src[i+1]-a)*frac
}

// remix reads in and writes one float slice per output channel. Mono is
// duplicated, downmix to mono averages, other layouts map channel for
// channel with silence padding.
func remix(in *AudioFrame, out [][]float32) {
	n := in.Samples
	switch {
	case in.Channels == len(out):
		for ch := range out {
			for i := 0; i < n; i++ {
				out[ch][i] = sampleAt(in, ch, i)
			}
		}
	case in.Channels == 1:
		for i := 0; i < n; i++ {
			v := sampleAt(in, 0, i)
			for ch := range out {
				out[ch][i] = v
			}
		}
	case len(out) == 1:
		scale := 1 / float32(in.Channels)
		for i := 0; i < n; i++ {
			var sum float32
			for ch := 0; ch < in.Channels; ch++ {
				sum += sampleAt(in, ch, i)
			}
			out[0][i] = sum * scale
		}
	default:
		for ch := range out {
			for i := 0; i < n; i++ {
				if ch < in.Channels {
					out[ch][i] = sampleAt(in, ch, i)
				} else {
					out[ch][i] = 0
				}
			}
		}
	}
}
