package transcode

import (
	"testing"
)

func TestCodecID_String(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  string
	}{
		{CodecH264, "H264"},
		{CodecH265, "H265"},
		{CodecVP8, "VP8"},
		{CodecVP9, "VP9"},
		{CodecAAC, "mpeg4-generic"},
		{CodecG711A, "PCMA"},
		{CodecG711U, "PCMU"},
		{CodecOpus, "opus"},
		{CodecL16, "L16"},
		{CodecInvalid, "invalid"},
		{CodecID(99), "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("CodecID.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodecID_Kind(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  MediaKind
	}{
		{CodecH264, KindVideo},
		{CodecVP9, KindVideo},
		{CodecAAC, KindAudio},
		{CodecG711U, KindAudio},
		{CodecL16, KindAudio},
		{CodecInvalid, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.Kind(); got != tt.want {
				t.Errorf("CodecID.Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodecID_MimeType(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  string
	}{
		{CodecVP8, "video/VP8"},
		{CodecH264, "video/H264"},
		{CodecAAC, "audio/mpeg4-generic"},
		{CodecG711A, "audio/PCMA"},
		{CodecOpus, "audio/opus"},
		{CodecInvalid, ""},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.MimeType(); got != tt.want {
				t.Errorf("CodecID.MimeType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodecID_ClockRate(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  uint32
	}{
		{CodecH264, 90000},
		{CodecH265, 90000},
		{CodecVP8, 90000},
		{CodecVP9, 90000},
		{CodecOpus, 48000},
		{CodecG711A, 8000},
		{CodecG711U, 8000},
		// Clocked at the track's sample rate.
		{CodecAAC, 0},
		{CodecL16, 0},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.ClockRate(); got != tt.want {
				t.Errorf("CodecID.ClockRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodecID_DefaultPayloadType(t *testing.T) {
	tests := []struct {
		codec CodecID
		want  uint8
	}{
		{CodecG711U, 0},
		{CodecG711A, 8},
		{CodecVP8, 96},
		{CodecAAC, 97},
		{CodecVP9, 98},
		{CodecL16, 99},
		{CodecH264, 102},
		{CodecH265, 104},
		{CodecOpus, 111},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.DefaultPayloadType(); got != tt.want {
				t.Errorf("CodecID.DefaultPayloadType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMediaKind_String(t *testing.T) {
	if KindAudio.String() != "audio" || KindVideo.String() != "video" || MediaKind(7).String() != "unknown" {
		t.Error("MediaKind.String() mismatch")
	}
}
