//go:build (darwin || linux) && !novpx

// VP8/VP9 engines backed by libmedia_vpx, a thin primitive-only wrapper
// around libvpx loaded at runtime with purego.

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
	mediaVPXOnce    sync.Once
	mediaVPXHandle  uintptr
	mediaVPXInitErr error
)

// libmedia_vpx function pointers
var (
	mediaVPXEncoderCreate        func(codec, width, height, fps, bitrateKbps, threads int32) uint64
	mediaVPXEncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts uintptr) int32
	mediaVPXEncoderMaxOutputSize func(encoder uint64) int32
	mediaVPXEncoderDestroy       func(encoder uint64)

	mediaVPXDecoderCreate   func(codec, threads int32) uint64
	mediaVPXDecoderDecodeV2 func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderDestroy  func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// mediaVPXDecodeResult matches media_vpx_decode_result_t. It must live on
// the heap for purego on arm64.
type mediaVPXDecodeResult struct {
	YPtr     uint64
	UPtr     uint64
	VPtr     uint64
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
	Result   int32 // 1=decoded, 0=buffering, <0=error
	Reserved int32
}

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1

	mediaVPXFrameKey = 0

	vpxDefaultKbps    = 1000
	vpxDefaultFPS     = 30
	vpxDefaultThreads = 4
)

func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		mediaVPXInitErr = loadMediaVPXLib()
	})
	return mediaVPXInitErr
}

func loadMediaVPXLib() error {
	var lastErr error
	for _, path := range libSearchPaths("media_vpx", "MEDIA_VPX_LIB_PATH") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaVPXHandle = handle
		loadMediaVPXSymbols()
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_vpx: %w", lastErr)
	}
	return errors.New("libmedia_vpx not found in any standard location")
}

func loadMediaVPXSymbols() {
	purego.RegisterLibFunc(&mediaVPXEncoderCreate, mediaVPXHandle, "media_vpx_encoder_create")
	purego.RegisterLibFunc(&mediaVPXEncoderEncode, mediaVPXHandle, "media_vpx_encoder_encode")
	purego.RegisterLibFunc(&mediaVPXEncoderMaxOutputSize, mediaVPXHandle, "media_vpx_encoder_max_output_size")
	purego.RegisterLibFunc(&mediaVPXEncoderDestroy, mediaVPXHandle, "media_vpx_encoder_destroy")

	purego.RegisterLibFunc(&mediaVPXDecoderCreate, mediaVPXHandle, "media_vpx_decoder_create")
	purego.RegisterLibFunc(&mediaVPXDecoderDecodeV2, mediaVPXHandle, "media_vpx_decoder_decode_v2")
	purego.RegisterLibFunc(&mediaVPXDecoderDestroy, mediaVPXHandle, "media_vpx_decoder_destroy")

	purego.RegisterLibFunc(&mediaVPXGetError, mediaVPXHandle, "media_vpx_get_error")
	purego.RegisterLibFunc(&mediaVPXCodecAvailable, mediaVPXHandle, "media_vpx_codec_available")
}

// IsVPXAvailable reports whether libmedia_vpx loads and supports codec,
// which must be CodecVP8 or CodecVP9.
func IsVPXAvailable(codec CodecID) bool {
	id, ok := vpxCodecID(codec)
	if !ok || loadMediaVPX() != nil {
		return false
	}
	return mediaVPXCodecAvailable(id) != 0
}

func vpxError() string {
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func vpxCodecID(codec CodecID) (int32, bool) {
	switch codec {
	case CodecVP8:
		return mediaVPXCodecVP8, true
	case CodecVP9:
		return mediaVPXCodecVP9, true
	}
	return 0, false
}

func init() {
	for _, c := range []CodecID{CodecVP8, CodecVP9} {
		DefaultRegistry.RegisterDecoder(vpxDecoderEngine{codec: c})
		DefaultRegistry.RegisterEncoder(vpxEncoderEngine{codec: c})
	}
}

// vpxEngineName follows the libvpx naming: libvpx is VP8, libvpx-vp9 is VP9.
func vpxEngineName(codec CodecID) string {
	if codec == CodecVP9 {
		return "libvpx-vp9"
	}
	return "libvpx"
}

type vpxEncoderEngine struct {
	codec CodecID
}

func (e vpxEncoderEngine) Name() string                { return vpxEngineName(e.codec) }
func (e vpxEncoderEngine) Codec() CodecID              { return e.codec }
func (vpxEncoderEngine) Hardware() bool                { return false }
func (vpxEncoderEngine) SampleFormats() []SampleFormat { return nil }

func (e vpxEncoderEngine) Open(p EncoderParams) (EncoderContext, error) {
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%s encoder not available: %w", e.codec, err)
	}
	id, _ := vpxCodecID(e.codec)
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: %s encoder needs a frame size", ErrInvalidData, e.codec)
	}
	kbps := p.BitRate / 1000
	if kbps <= 0 {
		kbps = vpxDefaultKbps
	}
	threads := p.Threads
	if threads <= 0 {
		threads = vpxDefaultThreads
	}
	handle := mediaVPXEncoderCreate(id, int32(p.Width), int32(p.Height), vpxDefaultFPS, int32(kbps), int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s encoder: %s", e.codec, vpxError())
	}
	maxOut := int(mediaVPXEncoderMaxOutputSize(handle))
	if maxOut <= 0 {
		maxOut = I420Size(p.Width, p.Height)
	}
	p.PixelFormat = PixelFormatI420
	p.FrameSize = 0
	return &vpxEncoder{
		videoEncoder: videoEncoder{params: p},
		handle:       handle,
		buf:          make([]byte, maxOut),
	}, nil
}

type vpxEncoder struct {
	videoEncoder
	handle uint64
	buf    []byte
}

func (c *vpxEncoder) SendFrame(raw RawFrame) error {
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
	var pts int64
	n := mediaVPXEncoderEncode(
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
	)
	runtime.KeepAlive(f)
	if n < 0 {
		return fmt.Errorf("%s encode failed: %s", c.params.Codec, vpxError())
	}
	if n > 0 {
		c.emit(c.buf[:n], frameType == mediaVPXFrameKey)
	}
	return nil
}

func (c *vpxEncoder) Close() error {
	if c.handle != 0 {
		mediaVPXEncoderDestroy(c.handle)
		c.handle = 0
	}
	return nil
}

type vpxDecoderEngine struct {
	codec CodecID
}

func (e vpxDecoderEngine) Name() string   { return vpxEngineName(e.codec) }
func (e vpxDecoderEngine) Codec() CodecID { return e.codec }
func (vpxDecoderEngine) Hardware() bool   { return false }

func (e vpxDecoderEngine) Open(p DecoderParams) (DecoderContext, error) {
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%s decoder not available: %w", e.codec, err)
	}
	id, _ := vpxCodecID(e.codec)
	threads := p.Threads
	if threads <= 0 {
		threads = vpxDefaultThreads
	}
	handle := mediaVPXDecoderCreate(id, int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s decoder: %s", e.codec, vpxError())
	}
	return &vpxDecoder{handle: handle, result: &mediaVPXDecodeResult{}}, nil
}

type vpxDecoder struct {
	videoDecoder
	handle uint64
	result *mediaVPXDecodeResult
}

func (d *vpxDecoder) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.handle == 0 {
		return ErrClosed
	}
	if len(pkt.Data) == 0 {
		return fmt.Errorf("%w: empty vpx packet", ErrInvalidData)
	}
	out := d.result
	n := mediaVPXDecoderDecodeV2(
		d.handle,
		uintptr(unsafe.Pointer(&pkt.Data[0])),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(out)),
	)
	runtime.KeepAlive(pkt.Data)
	runtime.KeepAlive(out)
	if n < 0 {
		return fmt.Errorf("%w: vpx decode: %s", ErrInvalidData, vpxError())
	}
	if n == 0 {
		return nil
	}
	if out.Width <= 0 || out.Height <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		return fmt.Errorf("%w: vpx output stride=%d/%d size=%dx%d", ErrInvalidData,
			out.YStride, out.UVStride, out.Width, out.Height)
	}
	f := copyI420(uintptr(out.YPtr), uintptr(out.UPtr), uintptr(out.VPtr),
		int(out.YStride), int(out.UVStride), int(out.Width), int(out.Height))
	f.PTS = pkt.PTS
	d.out = append(d.out, f)
	return nil
}

func (d *vpxDecoder) Close() error {
	if d.handle != 0 {
		mediaVPXDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}
