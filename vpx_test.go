//go:build (darwin || linux) && !novpx && !noh264

package transcode

import (
	"errors"
	"testing"
)

// gradientFrame fills an I420 frame with a diagonal luma ramp.
func gradientFrame(width, height int, pts int64) *VideoFrame {
	f := NewI420Frame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Data[0][y*width+x] = byte((x + y) % 256)
		}
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
	f.PTS = pts
	return f
}

func TestVideoEncoder_ForceKey(t *testing.T) {
	c := &videoEncoder{params: EncoderParams{GOPSize: 3}}
	var got []int32
	for i := 0; i < 7; i++ {
		got = append(got, c.forceKey())
	}
	want := []int32{1, 0, 0, 1, 0, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("forceKey sequence = %v, want %v", got, want)
		}
	}

	c = &videoEncoder{}
	if c.forceKey() != 1 || c.forceKey() != 0 {
		t.Error("without a GOP only the first frame is forced")
	}
}

func TestVideoEncoder_PacketTimestamps(t *testing.T) {
	c := &videoEncoder{}
	c.pending = []int64{0, 33, 66}
	// The library held the first frame back.
	c.emit([]byte{1}, true)
	c.emit([]byte{2}, false)

	p, err := c.ReceivePacket()
	if err != nil || p.PTS != 0 || !p.Key {
		t.Fatalf("first packet = %+v, %v", p, err)
	}
	p, _ = c.ReceivePacket()
	if p.PTS != 33 || p.Key {
		t.Errorf("second packet = %+v", p)
	}
	if _, err := c.ReceivePacket(); !errors.Is(err, ErrNeedMoreInput) {
		t.Errorf("err = %v", err)
	}
	c.draining = true
	if _, err := c.ReceivePacket(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("drained err = %v", err)
	}
}

func TestI420Input(t *testing.T) {
	tests := []struct {
		name string
		raw  RawFrame
		ok   bool
	}{
		{"match", NewI420Frame(64, 48), true},
		{"wrong size", NewI420Frame(32, 48), false},
		{"audio", &AudioFrame{}, false},
		{"nv12", &VideoFrame{Format: PixelFormatNV12, Width: 64, Height: 48}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i420Input(tt.raw, 64, 48)
			if tt.ok != (err == nil) {
				t.Errorf("err = %v", err)
			}
			if err != nil && !errors.Is(err, ErrInvalidData) {
				t.Errorf("err = %v, want ErrInvalidData", err)
			}
		})
	}
}

func TestVideoEngines_Registered(t *testing.T) {
	tests := []struct {
		name  string
		codec CodecID
	}{
		{"libvpx", CodecVP8},
		{"libvpx-vp9", CodecVP9},
	}
	for _, tt := range tests {
		e, ok := DefaultRegistry.Encoder(tt.name)
		if !ok || e.Codec() != tt.codec {
			t.Errorf("encoder %s not registered for %s", tt.name, tt.codec)
		}
		d, ok := DefaultRegistry.DefaultDecoder(tt.codec)
		if !ok || d.Name() != tt.name {
			t.Errorf("default %s decoder = %v", tt.codec, d)
		}
	}
}

func TestVPXEngine_RoundTrip(t *testing.T) {
	for _, codec := range []CodecID{CodecVP8, CodecVP9} {
		t.Run(codec.String(), func(t *testing.T) {
			if !IsVPXAvailable(codec) {
				t.Skip("libmedia_vpx not available")
			}
			enc, err := vpxEncoderEngine{codec: codec}.Open(EncoderParams{Codec: codec, Width: 320, Height: 240, BitRate: 500000, GOPSize: 10})
			if err != nil {
				t.Fatalf("open encoder: %v", err)
			}
			defer enc.Close()
			dec, err := vpxDecoderEngine{codec: codec}.Open(DecoderParams{Codec: codec})
			if err != nil {
				t.Fatalf("open decoder: %v", err)
			}
			defer dec.Close()

			if err := enc.SendFrame(gradientFrame(160, 120, 0)); !errors.Is(err, ErrInvalidData) {
				t.Errorf("resized frame: err = %v", err)
			}

			decoded := 0
			for i := 0; i < 10; i++ {
				if err := enc.SendFrame(gradientFrame(320, 240, int64(i*33))); err != nil {
					t.Fatalf("SendFrame: %v", err)
				}
				for {
					pkt, err := enc.ReceivePacket()
					if errors.Is(err, ErrNeedMoreInput) {
						break
					}
					if err != nil {
						t.Fatalf("ReceivePacket: %v", err)
					}
					if i == 0 && !pkt.Key {
						t.Error("first packet is not a key frame")
					}
					if err := dec.SendPacket(pkt); err != nil {
						t.Fatalf("SendPacket: %v", err)
					}
					for {
						raw, err := dec.ReceiveFrame()
						if err != nil {
							break
						}
						vf := raw.(*VideoFrame)
						if vf.Width != 320 || vf.Height != 240 || vf.PTS != pkt.PTS {
							t.Errorf("frame %dx%d pts %d", vf.Width, vf.Height, vf.PTS)
						}
						decoded++
					}
				}
			}
			if decoded == 0 {
				t.Error("no frames decoded")
			}
			if err := dec.SendPacket(&Packet{}); !errors.Is(err, ErrInvalidData) {
				t.Errorf("empty packet: err = %v", err)
			}
		})
	}
}

func TestH264Engine_RoundTrip(t *testing.T) {
	if !IsH264EncoderAvailable() || !IsH264DecoderAvailable() {
		t.Skip("libmedia_h264 not available")
	}
	enc, err := x264Engine{}.Open(EncoderParams{Codec: CodecH264, Width: 320, Height: 240, BitRate: 500000})
	if err != nil {
		t.Fatalf("open encoder: %v", err)
	}
	defer enc.Close()
	extra := enc.Params().ExtraData
	if len(extra) < 8 || extra[3] != 1 || extra[4]&0x1F != 7 {
		t.Errorf("extradata = % x", extra)
	}
	dec, err := openh264Engine{}.Open(DecoderParams{Codec: CodecH264, ExtraData: extra})
	if err != nil {
		t.Fatalf("open decoder: %v", err)
	}
	defer dec.Close()

	decoded := 0
	for i := 0; i < 30 && decoded == 0; i++ {
		if err := enc.SendFrame(gradientFrame(320, 240, int64(i*33))); err != nil {
			t.Fatalf("SendFrame: %v", err)
		}
		for {
			pkt, err := enc.ReceivePacket()
			if err != nil {
				break
			}
			if err := dec.SendPacket(pkt); err != nil {
				t.Fatalf("SendPacket: %v", err)
			}
			if raw, err := dec.ReceiveFrame(); err == nil {
				if vf := raw.(*VideoFrame); vf.Width != 320 || vf.Height != 240 {
					t.Errorf("frame %dx%d", vf.Width, vf.Height)
				}
				decoded++
			}
		}
	}
	if decoded == 0 {
		t.Error("no frames decoded")
	}
}

func BenchmarkVP8Encode(b *testing.B) {
	if !IsVPXAvailable(CodecVP8) {
		b.Skip("libmedia_vpx not available")
	}
	enc, err := vpxEncoderEngine{codec: CodecVP8}.Open(EncoderParams{Codec: CodecVP8, Width: 640, Height: 480, BitRate: 1000000})
	if err != nil {
		b.Fatal(err)
	}
	defer enc.Close()
	frame := gradientFrame(640, 480, 0)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		enc.SendFrame(frame)
		for {
			if _, err := enc.ReceivePacket(); err != nil {
				break
			}
		}
	}
}
