package transcode

// MediaKind separates audio from video codecs.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindAudio
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// CodecID identifies the codec carried by a Frame or Track.
type CodecID int

const (
	CodecInvalid CodecID = iota
	CodecH264
	CodecH265
	CodecVP8
	CodecVP9
	CodecAAC
	CodecG711A // A-law (PCMA)
	CodecG711U // mu-law (PCMU)
	CodecOpus
	CodecL16 // signed 16-bit little-endian PCM
)

func (c CodecID) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	case CodecVP8:
		return "VP8"
	case CodecVP9:
		return "VP9"
	case CodecAAC:
		return "mpeg4-generic"
	case CodecG711A:
		return "PCMA"
	case CodecG711U:
		return "PCMU"
	case CodecOpus:
		return "opus"
	case CodecL16:
		return "L16"
	default:
		return "invalid"
	}
}

// Kind reports whether the codec carries audio or video.
func (c CodecID) Kind() MediaKind {
	switch c {
	case CodecH264, CodecH265, CodecVP8, CodecVP9:
		return KindVideo
	case CodecAAC, CodecG711A, CodecG711U, CodecOpus, CodecL16:
		return KindAudio
	default:
		return KindUnknown
	}
}

// MimeType returns the MIME type for this codec.
func (c CodecID) MimeType() string {
	switch c {
	case CodecH264:
		return "video/H264"
	case CodecH265:
		return "video/H265"
	case CodecVP8:
		return "video/VP8"
	case CodecVP9:
		return "video/VP9"
	case CodecAAC:
		return "audio/mpeg4-generic"
	case CodecG711A:
		return "audio/PCMA"
	case CodecG711U:
		return "audio/PCMU"
	case CodecOpus:
		return "audio/opus"
	case CodecL16:
		return "audio/L16"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
// AAC and L16 are clocked at the track's sample rate, which the caller
// supplies; 0 is returned for them here.
func (c CodecID) ClockRate() uint32 {
	switch c {
	case CodecH264, CodecH265, CodecVP8, CodecVP9:
		return 90000
	case CodecOpus:
		return 48000
	case CodecG711A, CodecG711U:
		return 8000
	default:
		return 0
	}
}

// DefaultPayloadType returns a typical payload type for this codec.
// Note: Actual payload type is negotiated via SDP.
func (c CodecID) DefaultPayloadType() uint8 {
	switch c {
	case CodecG711U:
		return 0 // Static payload type
	case CodecG711A:
		return 8 // Static payload type
	case CodecH264:
		return 102
	case CodecH265:
		return 104
	case CodecVP8:
		return 96
	case CodecVP9:
		return 98
	case CodecAAC:
		return 97
	case CodecL16:
		return 99
	default:
		return 111
	}
}

// defaultEngineName is the canonical implementation name for a codec. It is
// the last resort of every candidate list.
func (c CodecID) defaultEngineName() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "hevc"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecAAC:
		return "aac"
	case CodecG711A:
		return "pcm_alaw"
	case CodecG711U:
		return "pcm_mulaw"
	case CodecOpus:
		return "libopus"
	case CodecL16:
		return "pcm_s16le"
	default:
		return ""
	}
}
