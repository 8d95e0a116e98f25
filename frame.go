// Core frame and sample types used across the transcode package.
package transcode

import "math"

// NoPTS marks a decoded frame whose timestamp is unknown.
const NoPTS int64 = math.MinInt64

// Frame is one encoded access unit. Timestamps are in milliseconds.
//
// Data holds Prefix bytes of in-band header (ADTS, Annex-B start code)
// followed by the payload. Once a Frame has been handed downstream its
// buffer must not be mutated; stages that need different bytes allocate.
type Frame struct {
	Codec  CodecID
	DTS    int64
	PTS    int64
	Data   []byte
	Prefix int
	Key    bool
	Index  int
}

// Size returns the full buffer length including the prefix.
func (f *Frame) Size() int { return len(f.Data) }

// Payload returns the bytes after the in-band header.
func (f *Frame) Payload() []byte {
	if f.Prefix >= len(f.Data) {
		return nil
	}
	return f.Data[f.Prefix:]
}

// Slice returns a sub-frame viewing n bytes of f starting at off. The view
// shares f's buffer.
func (f *Frame) Slice(off, n int, dts, pts int64, prefix int) *Frame {
	return &Frame{
		Codec:  f.Codec,
		DTS:    dts,
		PTS:    pts,
		Data:   f.Data[off : off+n : off+n],
		Prefix: prefix,
		Key:    f.Key,
		Index:  f.Index,
	}
}

// Clone creates a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// FrameWriter accepts encoded frames.
type FrameWriter interface {
	InputFrame(frame *Frame) bool
}

// FrameWriterFunc adapts a function to FrameWriter.
type FrameWriterFunc func(frame *Frame) bool

func (fn FrameWriterFunc) InputFrame(frame *Frame) bool { return fn(frame) }

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGBA                    // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGBA:
		return 1
	default:
		return 0
	}
}

// SampleFormat represents audio sample formats.
type SampleFormat int

const (
	SampleFormatS16  SampleFormat = iota // Signed 16-bit, interleaved
	SampleFormatS16P                     // Signed 16-bit, planar
	SampleFormatF32                      // 32-bit float, interleaved
	SampleFormatF32P                     // 32-bit float, planar
	SampleFormatU8                       // Unsigned 8-bit, interleaved
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatS16:
		return "s16"
	case SampleFormatS16P:
		return "s16p"
	case SampleFormatF32:
		return "flt"
	case SampleFormatF32P:
		return "fltp"
	case SampleFormatU8:
		return "u8"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the size of a single sample of one channel.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatF32, SampleFormatF32P:
		return 4
	case SampleFormatU8:
		return 1
	default:
		return 0
	}
}

// Planar reports whether each channel lives in its own plane.
func (s SampleFormat) Planar() bool {
	return s == SampleFormatS16P || s == SampleFormatF32P
}

// RawFrame is a decoded frame: either *AudioFrame or *VideoFrame.
type RawFrame interface {
	Kind() MediaKind
	Timestamp() int64
}

// AudioFrame holds decoded audio. Packed formats use a single plane,
// planar formats one plane per channel.
type AudioFrame struct {
	Format     SampleFormat
	SampleRate int
	Channels   int
	Samples    int // samples per channel
	Data       [][]byte
	PTS        int64 // milliseconds, NoPTS if unknown
}

func (f *AudioFrame) Kind() MediaKind  { return KindAudio }
func (f *AudioFrame) Timestamp() int64 { return f.PTS }

// Clone creates a deep copy of the audio frame.
func (f *AudioFrame) Clone() *AudioFrame {
	c := *f
	c.Data = make([][]byte, len(f.Data))
	for i, plane := range f.Data {
		c.Data[i] = append([]byte(nil), plane...)
	}
	return &c
}

// VideoFrame represents a raw video frame.
type VideoFrame struct {
	Data   [][]byte    // Plane data (1-3 planes depending on format)
	Stride []int       // Stride for each plane in bytes
	Width  int         // Frame width in pixels
	Height int         // Frame height in pixels
	Format PixelFormat // Pixel format
	PTS    int64       // milliseconds, NoPTS if unknown
}

func (f *VideoFrame) Kind() MediaKind  { return KindVideo }
func (f *VideoFrame) Timestamp() int64 { return f.PTS }

// Clone creates a deep copy of the video frame.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:   make([][]byte, len(f.Data)),
		Stride: make([]int, len(f.Stride)),
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		PTS:    f.PTS,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := ((width + 1) / 2) * ((height + 1) / 2)
	return ySize + uvSize*2
}

// NewI420Frame allocates a contiguous I420 frame.
func NewI420Frame(width, height int) *VideoFrame {
	buf := make([]byte, I420Size(width, height))
	ySize := width * height
	cw, ch := (width+1)/2, (height+1)/2
	uvSize := cw * ch
	return &VideoFrame{
		Data:   [][]byte{buf[:ySize], buf[ySize : ySize+uvSize], buf[ySize+uvSize:]},
		Stride: []int{width, cw, cw},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
		PTS:    NoPTS,
	}
}
