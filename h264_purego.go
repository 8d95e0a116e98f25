//go:build (darwin || linux) && !noh264

// H.264 engines backed by libmedia_h264: x264 for encoding and OpenH264
// for decoding, loaded at runtime with purego.

package transcode

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaH264Once    sync.Once
	mediaH264Handle  uintptr
	mediaH264InitErr error
)

// libmedia_h264 function pointers
var (
	mediaH264EncoderCreate        func(width, height, fps, bitrateKbps, profile, threads int32) uint64
	mediaH264EncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts, outDts uintptr) int32
	mediaH264EncoderMaxOutputSize func(encoder uint64) int32
	mediaH264EncoderGetSPSPPS     func(encoder uint64, spsOut uintptr, spsCapacity int32, spsLen uintptr, ppsOut uintptr, ppsCapacity int32, ppsLen uintptr) int32
	mediaH264EncoderDestroy       func(encoder uint64)

	mediaH264DecoderCreate  func(threads int32) uint64
	mediaH264DecoderDecode  func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaH264DecoderDestroy func(decoder uint64)

	mediaH264GetError         func() uintptr
	mediaH264EncoderAvailable func() int32
	mediaH264DecoderAvailable func() int32
)

// mediaH264DecodeResult collects the decoder's output parameters. It must
// live on the heap for purego on arm64.
type mediaH264DecodeResult struct {
	YPtr     uintptr
	UPtr     uintptr
	VPtr     uintptr
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
}

// Constants from media_h264.h
const (
	mediaH264ProfileBaseline = 66
	mediaH264ProfileMain     = 77
	mediaH264ProfileHigh     = 100

	mediaH264FrameI   = 0
	mediaH264FrameIDR = 3

	h264ParamSetCap = 256
)

func loadMediaH264() error {
	mediaH264Once.Do(func() {
		mediaH264InitErr = loadMediaH264Lib()
	})
	return mediaH264InitErr
}

func loadMediaH264Lib() error {
	var lastErr error
	for _, path := range libSearchPaths("media_h264", "MEDIA_H264_LIB_PATH") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaH264Handle = handle
		loadMediaH264Symbols()
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_h264: %w", lastErr)
	}
	return errors.New("libmedia_h264 not found in any standard location")
}

func loadMediaH264Symbols() {
	purego.RegisterLibFunc(&mediaH264EncoderCreate, mediaH264Handle, "media_h264_encoder_create")
	purego.RegisterLibFunc(&mediaH264EncoderEncode, mediaH264Handle, "media_h264_encoder_encode")
	purego.RegisterLibFunc(&mediaH264EncoderMaxOutputSize, mediaH264Handle, "media_h264_encoder_max_output_size")
	purego.RegisterLibFunc(&mediaH264EncoderGetSPSPPS, mediaH264Handle, "media_h264_encoder_get_sps_pps")
	purego.RegisterLibFunc(&mediaH264EncoderDestroy, mediaH264Handle, "media_h264_encoder_destroy")

	purego.RegisterLibFunc(&mediaH264DecoderCreate, mediaH264Handle, "media_h264_decoder_create")
	purego.RegisterLibFunc(&mediaH264DecoderDecode, mediaH264Handle, "media_h264_decoder_decode")
	purego.RegisterLibFunc(&mediaH264DecoderDestroy, mediaH264Handle, "media_h264_decoder_destroy")

	purego.RegisterLibFunc(&mediaH264GetError, mediaH264Handle, "media_h264_get_error")
	purego.RegisterLibFunc(&mediaH264EncoderAvailable, mediaH264Handle, "media_h264_encoder_available")
	purego.RegisterLibFunc(&mediaH264DecoderAvailable, mediaH264Handle, "media_h264_decoder_available")
}

// IsH264EncoderAvailable reports whether libmedia_h264 loads with x264.
func IsH264EncoderAvailable() bool {
	return loadMediaH264() == nil && mediaH264EncoderAvailable() != 0
}

// IsH264DecoderAvailable reports whether libmedia_h264 loads with OpenH264.
func IsH264DecoderAvailable() bool {
	return loadMediaH264() == nil && mediaH264DecoderAvailable() != 0
}

func h264Error() string {
	ptr := mediaH264GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// h264Profile maps the "profile" option onto a library constant.
func h264Profile(opts map[string]string) int32 {
	switch opts["profile"] {
	case "main":
		return mediaH264ProfileMain
	case "high":
		return mediaH264ProfileHigh
	}
	return mediaH264ProfileBaseline
}

func init() {
	DefaultRegistry.RegisterDecoder(openh264Engine{})
	DefaultRegistry.RegisterEncoder(x264Engine{})
}

type x264Engine struct{}

func (x264Engine) Name() string                  { return "libx264" }
func (x264Engine) Codec() CodecID                { return CodecH264 }
func (x264Engine) Hardware() bool                { return false }
func (x264Engine) SampleFormats() []SampleFormat { return nil }

func (x264Engine) Open(p EncoderParams) (EncoderContext, error) {
	if err := loadMediaH264(); err != nil {
		return nil, fmt.Errorf("h264 encoder not available: %w", err)
	}
	if mediaH264EncoderAvailable() == 0 {
		return nil, errors.New("h264 encoder not available: x264 not compiled in")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: h264 encoder needs a frame size", ErrInvalidData)
	}
	kbps := p.BitRate / 1000
	if kbps <= 0 {
		kbps = vpxDefaultKbps
	}
	threads := p.Threads
	if threads <= 0 {
		threads = vpxDefaultThreads
	}
	handle := mediaH264EncoderCreate(int32(p.Width), int32(p.Height), vpxDefaultFPS, int32(kbps), h264Profile(p.Options), int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create h264 encoder: %s", h264Error())
	}
	maxOut := int(mediaH264EncoderMaxOutputSize(handle))
	if maxOut <= 0 {
		maxOut = I420Size(p.Width, p.Height)
	}
	p.PixelFormat = PixelFormatI420
	p.FrameSize = 0
	p.ExtraData = h264ParamSets(handle)
	return &x264Encoder{
		videoEncoder: videoEncoder{params: p},
		handle:       handle,
		buf:          make([]byte, maxOut),
	}, nil
}

// h264ParamSets returns the encoder's SPS and PPS as an Annex-B blob.
func h264ParamSets(handle uint64) []byte {
	sps := make([]byte, h264ParamSetCap)
	pps := make([]byte, h264ParamSetCap)
	var spsLen, ppsLen int32
	mediaH264EncoderGetSPSPPS(
		handle,
		uintptr(unsafe.Pointer(&sps[0])), h264ParamSetCap, uintptr(unsafe.Pointer(&spsLen)),
		uintptr(unsafe.Pointer(&pps[0])), h264ParamSetCap, uintptr(unsafe.Pointer(&ppsLen)),
	)
	if spsLen <= 0 || ppsLen <= 0 {
		return nil
	}
	out := make([]byte, 0, 8+spsLen+ppsLen)
	out = append(out, 0, 0, 0, 1)
	out = append(out, sps[:spsLen]...)
	out = append(out, 0, 0, 0, 1)
	return append(out, pps[:ppsLen]...)
}

type x264Encoder struct {
	videoEncoder
	handle uint64
	buf    []byte
}

func (c *x264Encoder) SendFrame(raw RawFrame) error {
	if raw == nil {
		c.draining = true
		return nil
	}
	if c.handle == 0 {
		return ErrClosed
	}
	f, err := i420Input(raw, c.params.Width, c.params.Height)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, f.PTS)

	var frameType int32
	var pts, dts int64
	n := mediaH264EncoderEncode(
		c.handle,
		uintptr(unsafe.Pointer(&f.Data[0][0])),
		uintptr(unsafe.Pointer(&f.Data[1][0])),
		uintptr(unsafe.Pointer(&f.Data[2][0])),
		int32(f.Stride[0]),
		int32(f.Stride[1]),
		c.forceKey(),
		uintptr(unsafe.Pointer(&c.buf[0])),
		int32(len(c.buf)),
		uintptr(unsafe.Pointer(&frameType)),
		uintptr(unsafe.Pointer(&pts)),
		uintptr(unsafe.Pointer(&dts)),
	)
	runtime.KeepAlive(f)
	if n < 0 {
		return fmt.Errorf("h264 encode failed: %s", h264Error())
	}
	if n > 0 {
		c.emit(c.buf[:n], frameType == mediaH264FrameIDR || frameType == mediaH264FrameI)
	}
	return nil
}

func (c *x264Encoder) Close() error {
	if c.handle != 0 {
		mediaH264EncoderDestroy(c.handle)
		c.handle = 0
	}
	return nil
}

type openh264Engine struct{}

func (openh264Engine) Name() string   { return "libopenh264" }
func (openh264Engine) Codec() CodecID { return CodecH264 }
func (openh264Engine) Hardware() bool { return false }

func (openh264Engine) Open(p DecoderParams) (DecoderContext, error) {
	if err := loadMediaH264(); err != nil {
		return nil, fmt.Errorf("h264 decoder not available: %w", err)
	}
	if mediaH264DecoderAvailable() == 0 {
		return nil, errors.New("h264 decoder not available")
	}
	threads := p.Threads
	if threads <= 0 {
		threads = vpxDefaultThreads
	}
	handle := mediaH264DecoderCreate(int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create h264 decoder: %s", h264Error())
	}
	d := &openh264Decoder{handle: handle, result: &mediaH264DecodeResult{}}
	// Parameter sets from the container prime the decoder.
	if len(p.ExtraData) > 0 {
		if err := d.decode(p.ExtraData, NoPTS); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

type openh264Decoder struct {
	videoDecoder
	handle uint64
	result *mediaH264DecodeResult
}

func (d *openh264Decoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.handle == 0 {
		return ErrClosed
	}
	if len(pkt.Data) == 0 {
		return fmt.Errorf("%w: empty h264 packet", ErrInvalidData)
	}
	return d.decode(pkt.Data, pkt.PTS)
}

func (d *openh264Decoder) decode(data []byte, pts int64) error {
	out := d.result
	n := mediaH264DecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&data[0])),
		int32(len(data)),
		uintptr(unsafe.Pointer(&out.YPtr)),
		uintptr(unsafe.Pointer(&out.UPtr)),
		uintptr(unsafe.Pointer(&out.VPtr)),
		uintptr(unsafe.Pointer(&out.YStride)),
		uintptr(unsafe.Pointer(&out.UVStride)),
		uintptr(unsafe.Pointer(&out.Width)),
		uintptr(unsafe.Pointer(&out.Height)),
	)
	runtime.KeepAlive(data)
	runtime.KeepAlive(out)
	if n < 0 {
		return fmt.Errorf("%w: h264 decode: %s", ErrInvalidData, h264Error())
	}
	if n == 0 {
		return nil
	}
	if out.Width <= 0 || out.Height <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		return fmt.Errorf("%w: h264 output stride=%d/%d size=%dx%d", ErrInvalidData,
			out.YStride, out.UVStride, out.Width, out.Height)
	}
	f := copyI420(out.YPtr, out.UPtr, out.VPtr, int(out.YStride), int(out.UVStride), int(out.Width), int(out.Height))
	f.PTS = pts
	d.out = append(d.out, f)
	return nil
}

func (d *openh264Decoder) Close() error {
	if d.handle != 0 {
		mediaH264DecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}
