package transcode

import (
	"fmt"
)

// Built-in engines for the sample codecs: pcm_alaw, pcm_mulaw and
// pcm_s16le. They need no native library and accept any frame size.

func init() {
	for _, c := range []CodecID{CodecG711A, CodecG711U, CodecL16} {
		DefaultRegistry.RegisterDecoder(pcmDecoderEngine{codec: c})
		DefaultRegistry.RegisterEncoder(pcmEncoderEngine{codec: c})
	}
}

type pcmDecoderEngine struct{ codec CodecID }

func (e pcmDecoderEngine) Name() string   { return e.codec.defaultEngineName() }
func (e pcmDecoderEngine) Codec() CodecID { return e.codec }
func (e pcmDecoderEngine) Hardware() bool { return false }

func (e pcmDecoderEngine) Open(p DecoderParams) (DecoderContext, error) {
	rate, channels := p.SampleRate, p.Channels
	if rate <= 0 {
		rate = 8000
	}
	if channels <= 0 {
		channels = 1
	}
	return &pcmDecoder{codec: e.codec, rate: rate, channels: channels}, nil
}

type pcmDecoder struct {
	codec    CodecID
	rate     int
	channels int
	out      []*AudioFrame
	draining bool
}

func (d *pcmDecoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.draining {
		return fmt.Errorf("%s: %w", d.codec.defaultEngineName(), ErrEndOfStream)
	}
	var pcm []byte
	if d.codec == CodecL16 {
		pcm = append([]byte(nil), pkt.Data...)
	} else {
		pcm = G711ToPCM(d.codec, pkt.Data)
	}
	samples := len(pcm) / (2 * d.channels)
	if samples == 0 {
		return fmt.Errorf("%w: %d byte %s packet", ErrInvalidData, len(pkt.Data), d.codec)
	}
	d.out = append(d.out, &AudioFrame{
		Format:     SampleFormatS16,
		SampleRate: d.rate,
		Channels:   d.channels,
		Samples:    samples,
		Data:       [][]byte{pcm[:samples*2*d.channels]},
		PTS:        pkt.PTS,
	})
	return nil
}

func (d *pcmDecoder) ReceiveFrame() (RawFrame, error) {
	if len(d.out) > 0 {
		f := d.out[0]
		d.out = d.out[1:]
		return f, nil
	}
	if d.draining {
		return nil, ErrEndOfStream
	}
	return nil, ErrNeedMoreInput
}

func (d *pcmDecoder) Capabilities() Capabilities { return CapVariableFrameSize | CapLowDelay }
func (d *pcmDecoder) Close() error               { d.out = nil; return nil }

type pcmEncoderEngine struct{ codec CodecID }

func (e pcmEncoderEngine) Name() string                  { return e.codec.defaultEngineName() }
func (e pcmEncoderEngine) Codec() CodecID                { return e.codec }
func (e pcmEncoderEngine) Hardware() bool                { return false }
func (e pcmEncoderEngine) SampleFormats() []SampleFormat { return []SampleFormat{SampleFormatS16} }

func (e pcmEncoderEngine) Open(p EncoderParams) (EncoderContext, error) {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return nil, fmt.Errorf("%w: %s needs sample rate and channels, got %d/%d",
			ErrInvalidConfig, e.Name(), p.SampleRate, p.Channels)
	}
	if p.SampleFormat != SampleFormatS16 {
		return nil, fmt.Errorf("%w: %s takes s16, got %s", ErrInvalidConfig, e.Name(), p.SampleFormat)
	}
	p.FrameSize = 0
	p.ExtraData = nil
	return &pcmEncoder{params: p}, nil
}

type pcmEncoder struct {
	params   EncoderParams
	out      []*Packet
	draining bool
}

func (c *pcmEncoder) SendFrame(raw RawFrame) error {
	if raw == nil {
		c.draining = true
		return nil
	}
	f, ok := raw.(*AudioFrame)
	if !ok || f.Format != SampleFormatS16 || f.Channels != c.params.Channels {
		return fmt.Errorf("%w: %s expects s16/%d audio", ErrInvalidData, c.params.Codec, c.params.Channels)
	}
	pcm := f.Data[0][:f.Samples*2*f.Channels]
	var data []byte
	if c.params.Codec == CodecL16 {
		data = append([]byte(nil), pcm...)
	} else {
		data = PCMToG711(c.params.Codec, pcm)
	}
	c.out = append(c.out, &Packet{Data: data, PTS: f.PTS, DTS: f.PTS, Key: true})
	return nil
}

func (c *pcmEncoder) ReceivePacket() (*Packet, error) {
	if len(c.out) > 0 {
		p := c.out[0]
		c.out = c.out[1:]
		return p, nil
	}
	if c.draining {
		return nil, ErrEndOfStream
	}
	return nil, ErrNeedMoreInput
}

func (c *pcmEncoder) Params() EncoderParams      { return c.params }
func (c *pcmEncoder) Capabilities() Capabilities { return CapVariableFrameSize | CapLowDelay }
func (c *pcmEncoder) Close() error               { c.out = nil; return nil }
