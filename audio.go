package transcode

import (
	"encoding/binary"
	"math"
	"sync"
)

// sampleAt returns sample i of channel ch as a float in [-1, 1).
func sampleAt(f *AudioFrame, ch, i int) float32 {
	bps := f.Format.BytesPerSample()
	var b []byte
	if f.Format.Planar() {
		b = f.Data[ch][i*bps:]
	} else {
		b = f.Data[0][(i*f.Channels+ch)*bps:]
	}
	switch f.Format {
	case SampleFormatS16, SampleFormatS16P:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case SampleFormatF32, SampleFormatF32P:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case SampleFormatU8:
		return (float32(b[0]) - 128) / 128
	}
	return 0
}

// putSample stores v as sample i of channel ch.
func putSample(f *AudioFrame, ch, i int, v float32) {
	bps := f.Format.BytesPerSample()
	var b []byte
	if f.Format.Planar() {
		b = f.Data[ch][i*bps:]
	} else {
		b = f.Data[0][(i*f.Channels+ch)*bps:]
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	switch f.Format {
	case SampleFormatS16, SampleFormatS16P:
		s := int32(v * 32768)
		if s > math.MaxInt16 {
			s = math.MaxInt16
		}
		binary.LittleEndian.PutUint16(b, uint16(int16(s)))
	case SampleFormatF32, SampleFormatF32P:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	case SampleFormatU8:
		s := int32(v*128) + 128
		if s > 255 {
			s = 255
		}
		b[0] = byte(s)
	}
}

// planeSize is the byte length of each plane holding n samples.
func planeSize(format SampleFormat, channels, n int) int {
	if format.Planar() {
		return n * format.BytesPerSample()
	}
	return n * channels * format.BytesPerSample()
}

func planeCount(format SampleFormat, channels int) int {
	if format.Planar() {
		return channels
	}
	return 1
}

// framePool is a small bounded free list of audio buffers keyed by shape.
type framePool struct {
	mu   sync.Mutex
	free []*AudioFrame
	max  int
}

func newFramePool(max int) *framePool {
	return &framePool{max: max}
}

// get returns a frame able to hold n samples of the given shape.
func (p *framePool) get(format SampleFormat, channels, rate, n int) *AudioFrame {
	size := planeSize(format, channels, n)
	planes := planeCount(format, channels)

	p.mu.Lock()
	var f *AudioFrame
	for i := len(p.free) - 1; i >= 0; i-- {
		c := p.free[i]
		if len(c.Data) == planes && cap(c.Data[0]) >= size {
			f = c
			p.free = append(p.free[:i], p.free[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if f == nil {
		f = &AudioFrame{Data: make([][]byte, planes)}
		for i := range f.Data {
			f.Data[i] = make([]byte, size)
		}
	}
	for i := range f.Data {
		f.Data[i] = f.Data[i][:size]
	}
	f.Format = format
	f.Channels = channels
	f.SampleRate = rate
	f.Samples = n
	f.PTS = NoPTS
	return f
}

func (p *framePool) put(f *AudioFrame) {
	if f == nil {
		return
	}
	p.mu.Lock()
	if len(p.free) < p.max {
		p.free = append(p.free, f)
	}
	p.mu.Unlock()
}
