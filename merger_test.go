package transcode

import (
	"bytes"
	"errors"
	"testing"
)

type mergedUnit struct {
	dts, pts int64
	au       []byte
	idr      bool
}

func TestFrameMerger_GroupsByDTS(t *testing.T) {
	m := NewFrameMerger(CodecH264)
	var got []mergedUnit
	cb := func(dts, pts int64, au []byte, idr bool) {
		got = append(got, mergedUnit{dts, pts, au, idr})
	}

	sps := &Frame{Codec: CodecH264, DTS: 0, PTS: 0, Data: []byte{0, 0, 0, 1, 0x67, 0xAA}, Prefix: 4}
	pps := &Frame{Codec: CodecH264, DTS: 0, PTS: 0, Data: []byte{0, 0, 0, 1, 0x68, 0xBB}, Prefix: 4}
	idr := &Frame{Codec: CodecH264, DTS: 0, PTS: 0, Data: []byte{0x65, 0xCC}} // no start code
	p := &Frame{Codec: CodecH264, DTS: 40, PTS: 40, Data: []byte{0, 0, 1, 0x41, 0xDD}, Prefix: 3}

	for _, f := range []*Frame{sps, pps, idr, p} {
		if err := m.InputFrame(f, cb); err != nil {
			t.Fatalf("InputFrame rejected %x: %v", f.Data, err)
		}
	}
	if len(got) != 1 {
		t.Fatalf("got %d units before flush, want 1", len(got))
	}
	want := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 0, 1, 0x68, 0xBB, 0, 0, 0, 1, 0x65, 0xCC}
	if !bytes.Equal(got[0].au, want) {
		t.Errorf("au = %x, want %x", got[0].au, want)
	}
	if !got[0].idr || got[0].dts != 0 {
		t.Errorf("unit 0: idr=%v dts=%d", got[0].idr, got[0].dts)
	}

	m.Flush()
	if len(got) != 2 {
		t.Fatalf("got %d units after flush, want 2", len(got))
	}
	if got[1].idr || got[1].dts != 40 || got[1].pts != 40 {
		t.Errorf("unit 1: idr=%v dts=%d pts=%d", got[1].idr, got[1].dts, got[1].pts)
	}

	m.Flush()
	if len(got) != 2 {
		t.Error("empty flush emitted a unit")
	}
}

func TestFrameMerger_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"empty", &Frame{Codec: CodecH264}},
		{"prefix past data", &Frame{Codec: CodecH264, Data: []byte{0, 0, 1}, Prefix: 4}},
		{"negative prefix", &Frame{Codec: CodecH264, Data: []byte{0x65}, Prefix: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFrameMerger(CodecH264)
			called := false
			err := m.InputFrame(tt.frame, func(int64, int64, []byte, bool) { called = true })
			if !errors.Is(err, ErrInvalidData) {
				t.Errorf("err = %v, want ErrInvalidData", err)
			}
			m.Flush()
			if called {
				t.Error("rejected frame produced a unit")
			}
		})
	}
}

func TestIsRandomAccess(t *testing.T) {
	tests := []struct {
		name  string
		codec CodecID
		nal   []byte
		want  bool
	}{
		{"h264 idr", CodecH264, []byte{0x65}, true},
		{"h264 idr with start code", CodecH264, []byte{0, 0, 1, 0x25}, true},
		{"h264 non-idr", CodecH264, []byte{0x41}, false},
		{"h264 sps", CodecH264, []byte{0x67}, false},
		{"h265 idr_w_radl", CodecH265, []byte{19 << 1, 1}, true},
		{"h265 cra", CodecH265, []byte{21 << 1, 1}, true},
		{"h265 trail", CodecH265, []byte{1 << 1, 1}, false},
		{"h265 vps", CodecH265, []byte{32 << 1, 1}, false},
		{"empty", CodecH264, nil, false},
		{"audio", CodecAAC, []byte{0x65}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRandomAccess(tt.codec, tt.nal); got != tt.want {
				t.Errorf("isRandomAccess = %v, want %v", got, tt.want)
			}
		})
	}
}
