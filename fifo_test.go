package transcode

import (
	"encoding/binary"
	"errors"
	"testing"
)

// s16Frame returns an interleaved S16 frame whose samples count up from
// first.
func s16Frame(rate, channels, samples int, first int16, pts int64) *AudioFrame {
	data := make([]byte, samples*channels*2)
	v := first
	for i := 0; i < samples*channels; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
		v++
	}
	return &AudioFrame{
		Format:     SampleFormatS16,
		SampleRate: rate,
		Channels:   channels,
		Samples:    samples,
		Data:       [][]byte{data},
		PTS:        pts,
	}
}

func TestAudioFifo_Timestamps(t *testing.T) {
	f := NewAudioFifo(nil)
	steps := []struct {
		write    *AudioFrame
		wantPTS  int64
		wantSize int
	}{
		{s16Frame(8000, 1, 160, 0, 0), 0, 60},
		{s16Frame(8000, 1, 160, 0, 20), 13, 120},
		// 5 ms of jitter keeps the running base.
		{s16Frame(8000, 1, 160, 0, 45), 25, 180},
		// A jump beyond the rebase window snaps to the new timestamp.
		{s16Frame(8000, 1, 160, 0, 1000), 1000 - 180/8, 240},
	}
	for i, st := range steps {
		if err := f.Write(st.write); err != nil {
			t.Fatalf("step %d: Write: %v", i, err)
		}
		out, ok := f.Read(100)
		if !ok {
			t.Fatalf("step %d: Read failed with %d buffered", i, f.Size())
		}
		if out.PTS != st.wantPTS || f.Size() != st.wantSize {
			t.Errorf("step %d: pts %d size %d, want %d %d", i, out.PTS, f.Size(), st.wantPTS, st.wantSize)
		}
	}

	if err := f.Write(s16Frame(8000, 1, 160, 0, NoPTS)); err != nil {
		t.Fatal(err)
	}
	if out, _ := f.Read(100); out.PTS != NoPTS {
		t.Errorf("pts after untimed write = %d", out.PTS)
	}
}

func TestAudioFifo_SampleContinuity(t *testing.T) {
	f := NewAudioFifo(nil)
	// 3 writes of 70 stereo samples, counting up across frame boundaries.
	for i := 0; i < 3; i++ {
		if err := f.Write(s16Frame(48000, 2, 70, int16(i*140), int64(i))); err != nil {
			t.Fatal(err)
		}
	}
	var next int16
	for {
		out, ok := f.Read(64)
		if !ok {
			break
		}
		if out.Samples != 64 || len(out.Data[0]) != 64*2*2 {
			t.Fatalf("read %d samples in %d bytes", out.Samples, len(out.Data[0]))
		}
		for i := 0; i < 128; i++ {
			if v := int16(binary.LittleEndian.Uint16(out.Data[0][i*2:])); v != next {
				t.Fatalf("sample %d = %d, want %d", next, v, next)
			}
			next++
		}
	}
	if next != 192*2 || f.Size() != 210-192 {
		t.Errorf("read %d values, %d samples left", next, f.Size())
	}
}

func TestAudioFifo_Errors(t *testing.T) {
	f := NewAudioFifo(nil)
	if _, ok := f.Read(10); ok {
		t.Error("Read on empty fifo succeeded")
	}
	if err := f.Write(s16Frame(8000, 1, 10, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Read(0); ok {
		t.Error("Read(0) succeeded")
	}
	if _, ok := f.Read(11); ok {
		t.Error("Read beyond size succeeded")
	}
	if err := f.Write(s16Frame(8000, 2, 10, 0, 0)); !errors.Is(err, ErrInvalidData) {
		t.Errorf("channel change: err = %v", err)
	}
}

func TestAudioFifo_ShortPlanes(t *testing.T) {
	tests := []struct {
		name  string
		frame *AudioFrame
	}{
		{"short interleaved", &AudioFrame{Format: SampleFormatS16, Channels: 2, Samples: 10, Data: [][]byte{make([]byte, 39)}}},
		{"missing plane", &AudioFrame{Format: SampleFormatF32P, Channels: 2, Samples: 4, Data: [][]byte{make([]byte, 16)}}},
		{"short second plane", &AudioFrame{Format: SampleFormatS16P, Channels: 2, Samples: 4, Data: [][]byte{make([]byte, 8), make([]byte, 6)}}},
		{"no data", &AudioFrame{Format: SampleFormatS16, Channels: 1, Samples: 1}},
		{"negative samples", &AudioFrame{Format: SampleFormatS16, Channels: 1, Samples: -1, Data: [][]byte{nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewAudioFifo(nil)
			tt.frame.PTS = NoPTS
			if err := f.Write(tt.frame); !errors.Is(err, ErrInvalidData) {
				t.Errorf("err = %v, want ErrInvalidData", err)
			}
			if f.Size() != 0 {
				t.Errorf("size = %d after a rejected write", f.Size())
			}
			// The rejected frame does not fix the fifo layout.
			if err := f.Write(s16Frame(8000, 1, 10, 0, 0)); err != nil {
				t.Errorf("valid write after rejection: %v", err)
			}
		})
	}
}

func BenchmarkAudioFifo(b *testing.B) {
	f := NewAudioFifo(nil)
	in := s16Frame(48000, 2, 441, 0, 0)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		in.PTS = int64(i * 10)
		f.Write(in)
		for {
			if _, ok := f.Read(960); !ok {
				break
			}
		}
	}
}
