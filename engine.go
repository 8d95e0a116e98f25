package transcode

import "io"

// Capabilities is a bitmask of codec engine capabilities.
type Capabilities uint32

const (
	CapVariableFrameSize Capabilities = 1 << iota // Audio encoder accepts any sample count
	CapTruncated                                  // Decoder accepts partial access units
	CapHardware                                   // Hardware accelerated
	CapLowDelay                                   // Optimized for real-time
)

// Has returns true if all specified capabilities are present.
func (c Capabilities) Has(cap Capabilities) bool { return c&cap == cap }

// Packet is one unit exchanged with a codec engine.
type Packet struct {
	Data []byte
	PTS  int64
	DTS  int64
	Key  bool
}

// DecoderParams configures a decoder context.
type DecoderParams struct {
	Codec      CodecID
	SampleRate int
	Channels   int
	Width      int
	Height     int
	ExtraData  []byte
	Threads    int // 0 = auto
}

// EncoderParams configures an encoder context. Timestamps handed to the
// context are in TimeBase ticks per second.
type EncoderParams struct {
	Codec        CodecID
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
	Width        int
	Height       int
	PixelFormat  PixelFormat
	BitRate      int
	TimeBase     int
	GOPSize      int
	MaxBFrames   int
	// CompressionLevel is codec-specific; -1 leaves the engine default.
	CompressionLevel int
	Threads          int
	Options          map[string]string

	// Filled by the engine on open.
	FrameSize int // samples per channel the encoder demands, 0 if any
	ExtraData []byte
}

// DecoderContext is an open decoding session.
type DecoderContext interface {
	io.Closer

	// SendPacket feeds one unit. A nil packet enters drain mode.
	// Malformed input is reported as ErrInvalidData.
	SendPacket(pkt *Packet) error

	// ReceiveFrame returns the next decoded frame, ErrNeedMoreInput when
	// the engine wants more input, or ErrEndOfStream after a drain.
	ReceiveFrame() (RawFrame, error)

	Capabilities() Capabilities
}

// EncoderContext is an open encoding session.
type EncoderContext interface {
	io.Closer

	// SendFrame feeds one frame. A nil frame enters drain mode.
	SendFrame(frame RawFrame) error

	// ReceivePacket returns the next encoded packet, ErrNeedMoreInput, or
	// ErrEndOfStream after a drain.
	ReceivePacket() (*Packet, error)

	// Params returns the negotiated parameters.
	Params() EncoderParams

	Capabilities() Capabilities
}

// DecoderEngine is a decoding implementation.
type DecoderEngine interface {
	Name() string
	Codec() CodecID
	Hardware() bool
	Open(params DecoderParams) (DecoderContext, error)
}

// EncoderEngine is an encoding implementation.
type EncoderEngine interface {
	Name() string
	Codec() CodecID
	Hardware() bool
	// SampleFormats lists accepted audio formats, preferred first.
	SampleFormats() []SampleFormat
	Open(params EncoderParams) (EncoderContext, error)
}
