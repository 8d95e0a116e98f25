package transcode

import (
	"fmt"

	"github.com/pion/logging"
)

// G711ToOpusOptions configures a G711ToOpus converter.
type G711ToOpusOptions struct {
	Config        *Config
	Registry      *Registry
	LoggerFactory logging.LoggerFactory
}

// G711ToOpus decodes G711 frames, encodes them to Opus and forwards the
// result to its sinks.
type G711ToOpus struct {
	dispatcher
	src  Track
	dst  Track
	pipe *transcodePair
	log  logging.LeveledLogger
}

// NewG711ToOpus creates a converter from a G711A or G711U track. A nil opus
// track gets the Opus defaults at the configured opus_bitrate.
func NewG711ToOpus(g711, opus Track, opts G711ToOpusOptions) (*G711ToOpus, error) {
	if g711 == nil || (g711.Codec() != CodecG711A && g711.Codec() != CodecG711U) {
		return nil, fmt.Errorf("%w: source must be G711", ErrCodecMismatch)
	}
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opus == nil {
		opus = NewTrackByCodec(CodecOpus, 0, 0, 0)
		opus.SetBitrate(cfg.OpusBitrate)
	}
	if opus.Codec() != CodecOpus {
		return nil, fmt.Errorf("%w: target %s is not opus", ErrCodecMismatch, opus.Codec())
	}

	c := &G711ToOpus{
		src: g711,
		dst: opus,
		log: newLogger(opts.LoggerFactory, "g711"),
	}
	pipe, err := newTranscodePair(g711, opus, &cfg, opts.Registry, opts.LoggerFactory, func(f *Frame) {
		c.dispatch(f)
	})
	if err != nil {
		return nil, err
	}
	c.pipe = pipe
	c.log.Infof("G711ToOpus created: %s -> opus", g711.Codec())
	return c, nil
}

// OutputTrack returns the Opus track frames are produced for.
func (c *G711ToOpus) OutputTrack() Track { return c.dst }

// InputFrame decodes frame synchronously; encoded output reaches the sinks
// before it returns.
func (c *G711ToOpus) InputFrame(frame *Frame) bool {
	if frame.Codec != c.src.Codec() {
		c.log.Warnf("unexpected %s frame on %s->opus converter", frame.Codec, c.src.Codec())
		return false
	}
	return c.pipe.dec.Decode(frame, false, false, false)
}

// Close drains and releases the codec contexts.
func (c *G711ToOpus) Close() error {
	return c.pipe.close()
}
