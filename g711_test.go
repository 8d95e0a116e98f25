package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestG711_Codepoints(t *testing.T) {
	tests := []struct {
		name string
		got  int16
		want int16
	}{
		{"alaw silence", ALawToLinear(0xD5), 0},
		{"alaw negative silence", ALawToLinear(0x55), 0},
		{"alaw max", ALawToLinear(0xAA), 32256},
		{"alaw min", ALawToLinear(0x2A), -32256},
		{"ulaw silence", ULawToLinear(0xFF), 0},
		{"ulaw negative silence", ULawToLinear(0x7F), 0},
		{"ulaw min", ULawToLinear(0x00), -32124},
		{"ulaw max", ULawToLinear(0x80), 32124},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}

	if b := LinearToALaw(0); b != 0xD5 {
		t.Errorf("LinearToALaw(0) = %#x", b)
	}
	if b := LinearToULaw(0); b != 0xFF {
		t.Errorf("LinearToULaw(0) = %#x", b)
	}
	if b := LinearToALaw(32767); b != 0xAA {
		t.Errorf("LinearToALaw(max) = %#x", b)
	}
	if b := LinearToULaw(-32768); b != 0x00 {
		t.Errorf("LinearToULaw(min) = %#x", b)
	}
}

func TestG711_RoundTrip(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		// Negative zero codes expand to 0, which compresses to positive zero.
		if b != 0x55 {
			if got := LinearToALaw(ALawToLinear(b)); got != b {
				t.Errorf("alaw %#x -> %d -> %#x", b, ALawToLinear(b), got)
			}
		}
		if b != 0x7F {
			if got := LinearToULaw(ULawToLinear(b)); got != b {
				t.Errorf("ulaw %#x -> %d -> %#x", b, ULawToLinear(b), got)
			}
		}
	}
}

func TestG711ToPCM(t *testing.T) {
	pcm := G711ToPCM(CodecG711A, []byte{0xD5, 0xAA, 0x2A})
	if len(pcm) != 6 {
		t.Fatalf("len = %d", len(pcm))
	}
	want := []int16{0, 32256, -32256}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(pcm[i*2:])); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}

	back := PCMToG711(CodecG711U, append(G711ToPCM(CodecG711U, []byte{0xFF, 0x00, 0x80}), 0x01))
	if !bytes.Equal(back, []byte{0xFF, 0x00, 0x80}) {
		t.Errorf("ulaw round trip = % x", back)
	}
}

func TestG711Converter(t *testing.T) {
	track := NewAudioTrack(CodecG711A, 8000, 1, 16)
	conv, err := NewG711Converter(track, nil)
	if err != nil {
		t.Fatalf("NewG711Converter: %v", err)
	}
	rec := &frameRecorder{}
	conv.AddSink(rec)

	if !conv.InputFrame(&Frame{Codec: CodecG711A, PTS: 40, DTS: 40, Data: bytes.Repeat([]byte{0xD5}, 160)}) {
		t.Fatal("InputFrame returned false")
	}
	if len(rec.frames) != 1 {
		t.Fatalf("dispatched %d frames", len(rec.frames))
	}
	out := rec.frames[0]
	if out.Codec != CodecL16 || len(out.Data) != 320 || out.PTS != 40 || !out.Key {
		t.Errorf("output = codec %s len %d pts %d", out.Codec, len(out.Data), out.PTS)
	}
	if !bytes.Equal(out.Data, make([]byte, 320)) {
		t.Error("silence did not expand to zeros")
	}

	if conv.InputFrame(&Frame{Codec: CodecG711U, Data: []byte{0xFF}}) {
		t.Error("mu-law frame accepted by A-law converter")
	}
	if conv.InputFrame(&Frame{Codec: CodecG711A}) {
		t.Error("empty frame accepted")
	}

	ot := conv.OutputTrack()
	if a, ok := ot.(AudioInfo); !ok || ot.Codec() != CodecL16 || a.SampleRate() != 8000 || a.Channels() != 1 {
		t.Errorf("output track = %v", ot)
	}

	if _, err := NewG711Converter(NewAudioTrack(CodecOpus, 48000, 2, 16), nil); !errors.Is(err, ErrCodecMismatch) {
		t.Errorf("opus track: err = %v", err)
	}
	if _, err := NewG711Converter(nil, nil); !errors.Is(err, ErrCodecMismatch) {
		t.Errorf("nil track: err = %v", err)
	}
}

func BenchmarkG711ToPCM(b *testing.B) {
	data := bytes.Repeat([]byte{0x12, 0x34, 0xD5, 0xAA}, 40)
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		G711ToPCM(CodecG711U, data)
	}
}
