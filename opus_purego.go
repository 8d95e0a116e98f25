//go:build (darwin || linux) && !noopus

// Opus engines backed by libstream_opus, a thin primitive-only wrapper
// around libopus loaded at runtime with purego.

package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	streamOpusOnce    sync.Once
	streamOpusHandle  uintptr
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusEncoderCreate        func(sampleRate, channels, application int32) uint64
	streamOpusEncoderEncode        func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamOpusEncoderSetBitrate    func(encoder uint64, bitrate int32) int32
	streamOpusEncoderSetComplexity func(encoder uint64, complexity int32) int32
	streamOpusEncoderSetFEC        func(encoder uint64, enabled int32) int32
	streamOpusEncoderDestroy       func(encoder uint64)

	streamOpusDecoderCreate  func(sampleRate, channels int32) uint64
	streamOpusDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusDecoderDestroy func(decoder uint64)

	streamOpusGetError   func() uintptr
	streamOpusGetVersion func() uintptr
)

// Constants from stream_opus.h
const (
	streamOpusApplicationAudio = 2049
	streamOpusOK               = 0

	opusMaxPacket  = 4000
	opusFrameMs    = 20
	opusMaxFrameMs = 120
)

// loadStreamOpus loads the libstream_opus shared library.
func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		streamOpusInitErr = loadStreamOpusLib()
	})
	return streamOpusInitErr
}

func loadStreamOpusLib() error {
	var lastErr error
	for _, path := range libSearchPaths("stream_opus", "STREAM_OPUS_LIB_PATH") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		streamOpusHandle = handle
		loadStreamOpusSymbols()
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_opus: %w", lastErr)
	}
	return errors.New("libstream_opus not found in any standard location")
}

func loadStreamOpusSymbols() {
	purego.RegisterLibFunc(&streamOpusEncoderCreate, streamOpusHandle, "stream_opus_encoder_create")
	purego.RegisterLibFunc(&streamOpusEncoderEncode, streamOpusHandle, "stream_opus_encoder_encode")
	purego.RegisterLibFunc(&streamOpusEncoderSetBitrate, streamOpusHandle, "stream_opus_encoder_set_bitrate")
	purego.RegisterLibFunc(&streamOpusEncoderSetComplexity, streamOpusHandle, "stream_opus_encoder_set_complexity")
	purego.RegisterLibFunc(&streamOpusEncoderSetFEC, streamOpusHandle, "stream_opus_encoder_set_fec")
	purego.RegisterLibFunc(&streamOpusEncoderDestroy, streamOpusHandle, "stream_opus_encoder_destroy")

	purego.RegisterLibFunc(&streamOpusDecoderCreate, streamOpusHandle, "stream_opus_decoder_create")
	purego.RegisterLibFunc(&streamOpusDecoderDecode, streamOpusHandle, "stream_opus_decoder_decode")
	purego.RegisterLibFunc(&streamOpusDecoderDestroy, streamOpusHandle, "stream_opus_decoder_destroy")

	purego.RegisterLibFunc(&streamOpusGetError, streamOpusHandle, "stream_opus_get_error")
	purego.RegisterLibFunc(&streamOpusGetVersion, streamOpusHandle, "stream_opus_get_version")
}

// IsOpusAvailable checks if libstream_opus is available.
func IsOpusAvailable() bool {
	return loadStreamOpus() == nil
}

// OpusVersion returns the libopus version string.
func OpusVersion() string {
	if !IsOpusAvailable() {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func opusError() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// opusRate maps a rate onto one libopus accepts.
func opusRate(rate int) int {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return rate
	}
	return 48000
}

func opusChannels(ch int) int {
	if ch == 1 {
		return 1
	}
	return 2
}

func init() {
	DefaultRegistry.RegisterDecoder(opusDecoderEngine{})
	DefaultRegistry.RegisterEncoder(opusEncoderEngine{})
}

type opusEncoderEngine struct{}

func (opusEncoderEngine) Name() string                  { return "libopus" }
func (opusEncoderEngine) Codec() CodecID                { return CodecOpus }
func (opusEncoderEngine) Hardware() bool                { return false }
func (opusEncoderEngine) SampleFormats() []SampleFormat { return []SampleFormat{SampleFormatS16} }

func (opusEncoderEngine) Open(p EncoderParams) (EncoderContext, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("opus encoder not available: %w", err)
	}
	p.SampleRate = opusRate(p.SampleRate)
	p.Channels = opusChannels(p.Channels)
	p.SampleFormat = SampleFormatS16
	p.FrameSize = p.SampleRate * opusFrameMs / 1000

	handle := streamOpusEncoderCreate(int32(p.SampleRate), int32(p.Channels), streamOpusApplicationAudio)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create opus encoder: %s", opusError())
	}
	if p.BitRate > 0 {
		streamOpusEncoderSetBitrate(handle, int32(p.BitRate))
	}
	if p.CompressionLevel >= 0 {
		streamOpusEncoderSetComplexity(handle, int32(p.CompressionLevel))
	}
	streamOpusEncoderSetFEC(handle, 1)

	return &opusEncoder{
		params: p,
		handle: handle,
		pcm:    make([]int16, p.FrameSize*p.Channels),
		buf:    make([]byte, opusMaxPacket),
	}, nil
}

type opusEncoder struct {
	params   EncoderParams
	handle   uint64
	pcm      []int16
	buf      []byte
	out      []*Packet
	draining bool
}

func (c *opusEncoder) SendFrame(raw RawFrame) error {
	if raw == nil {
		c.draining = true
		return nil
	}
	if c.handle == 0 {
		return ErrClosed
	}
	f, ok := raw.(*AudioFrame)
	if !ok || f.Format != SampleFormatS16 || f.Channels != c.params.Channels {
		return fmt.Errorf("%w: opus expects s16/%d audio", ErrInvalidData, c.params.Channels)
	}
	if f.Samples != c.params.FrameSize {
		return fmt.Errorf("%w: opus frame of %d samples, want %d", ErrInvalidData, f.Samples, c.params.FrameSize)
	}
	for i := range c.pcm {
		c.pcm[i] = int16(binary.LittleEndian.Uint16(f.Data[0][i*2:]))
	}
	n := streamOpusEncoderEncode(
		c.handle,
		uintptr(unsafe.Pointer(&c.pcm[0])),
		int32(f.Samples),
		uintptr(unsafe.Pointer(&c.buf[0])),
		int32(len(c.buf)),
	)
	if n < 0 {
		return fmt.Errorf("opus encode failed: %s", opusError())
	}
	c.out = append(c.out, &Packet{
		Data: append([]byte(nil), c.buf[:n]...),
		PTS:  f.PTS,
		DTS:  f.PTS,
		Key:  true,
	})
	return nil
}

func (c *opusEncoder) ReceivePacket() (*Packet, error) {
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

func (c *opusEncoder) Params() EncoderParams      { return c.params }
func (c *opusEncoder) Capabilities() Capabilities { return CapLowDelay }

func (c *opusEncoder) Close() error {
	if c.handle != 0 {
		streamOpusEncoderDestroy(c.handle)
		c.handle = 0
	}
	return nil
}

type opusDecoderEngine struct{}

func (opusDecoderEngine) Name() string   { return "libopus" }
func (opusDecoderEngine) Codec() CodecID { return CodecOpus }
func (opusDecoderEngine) Hardware() bool { return false }

func (opusDecoderEngine) Open(p DecoderParams) (DecoderContext, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("opus decoder not available: %w", err)
	}
	rate := opusRate(p.SampleRate)
	channels := opusChannels(p.Channels)
	handle := streamOpusDecoderCreate(int32(rate), int32(channels))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create opus decoder: %s", opusError())
	}
	maxSamples := rate * opusMaxFrameMs / 1000
	return &opusDecoder{
		handle:     handle,
		rate:       rate,
		channels:   channels,
		maxSamples: maxSamples,
		pcm:        make([]int16, maxSamples*channels),
	}, nil
}

type opusDecoder struct {
	handle     uint64
	rate       int
	channels   int
	maxSamples int
	pcm        []int16
	out        []*AudioFrame
	draining   bool
}

func (d *opusDecoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.handle == 0 {
		return ErrClosed
	}
	if len(pkt.Data) == 0 {
		return fmt.Errorf("%w: empty opus packet", ErrInvalidData)
	}
	n := streamOpusDecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&pkt.Data[0])),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(&d.pcm[0])),
		int32(d.maxSamples),
		0,
	)
	if n < 0 {
		return fmt.Errorf("%w: opus decode: %s", ErrInvalidData, opusError())
	}
	samples := int(n)
	data := make([]byte, samples*d.channels*2)
	for i := 0; i < samples*d.channels; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(d.pcm[i]))
	}
	d.out = append(d.out, &AudioFrame{
		Format:     SampleFormatS16,
		SampleRate: d.rate,
		Channels:   d.channels,
		Samples:    samples,
		Data:       [][]byte{data},
		PTS:        pkt.PTS,
	})
	return nil
}

func (d *opusDecoder) ReceiveFrame() (RawFrame, error) {
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

func (d *opusDecoder) Capabilities() Capabilities { return CapLowDelay }

func (d *opusDecoder) Close() error {
	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}
