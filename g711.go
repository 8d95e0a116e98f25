package transcode

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/logging"
)

// ALawToLinear expands one A-law byte to 16-bit linear PCM. The two
// smallest-magnitude codepoints (0xD5 and 0x55) are the A-law silence
// codes and map to 0.
func ALawToLinear(a byte) int16 {
	if a == 0xD5 || a == 0x55 {
		return 0
	}
	a ^= 0x55
	t := int32(a&0x0F) << 4
	seg := int32(a&0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// ULawToLinear expands one mu-law byte to 16-bit linear PCM.
func ULawToLinear(u byte) int16 {
	u = ^u
	t := (int32(u&0x0F) << 3) + 0x84
	t <<= int32(u&0x70) >> 4
	if u&0x80 != 0 {
		return int16(0x84 - t)
	}
	return int16(t - 0x84)
}

var (
	alawSegEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}
	ulawSegEnd = [8]int32{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}
)

func segment(v int32, table *[8]int32) int32 {
	for i, end := range table {
		if v <= end {
			return int32(i)
		}
	}
	return 8
}

// LinearToALaw compresses a 16-bit linear sample to A-law.
func LinearToALaw(pcm int16) byte {
	v := int32(pcm) >> 3
	var mask int32
	if v >= 0 {
		mask = 0xD5
	} else {
		mask = 0x55
		v = -v - 1
	}
	seg := segment(v, &alawSegEnd)
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	aval := seg << 4
	if seg < 2 {
		aval |= (v >> 1) & 0x0F
	} else {
		aval |= (v >> seg) & 0x0F
	}
	return byte(aval ^ mask)
}

// LinearToULaw compresses a 16-bit linear sample to mu-law.
func LinearToULaw(pcm int16) byte {
	const (
		bias = 0x84
		clip = 8159
	)
	v := int32(pcm) >> 2
	var mask int32
	if v < 0 {
		v = -v
		mask = 0x7F
	} else {
		mask = 0xFF
	}
	if v > clip {
		v = clip
	}
	v += bias >> 2
	seg := segment(v, &ulawSegEnd)
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	uval := (seg << 4) | ((v >> (seg + 1)) & 0x0F)
	return byte(uval ^ mask)
}

// G711ToPCM expands G711 bytes into little-endian S16 samples. The output
// is twice the input length.
func G711ToPCM(codec CodecID, data []byte) []byte {
	out := make([]byte, len(data)*2)
	expand := ALawToLinear
	if codec == CodecG711U {
		expand = ULawToLinear
	}
	for i, b := range data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(expand(b)))
	}
	return out
}

// PCMToG711 compresses little-endian S16 samples. A trailing odd byte is
// ignored.
func PCMToG711(codec CodecID, pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	compress := LinearToALaw
	if codec == CodecG711U {
		compress = LinearToULaw
	}
	for i := range out {
		out[i] = compress(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// G711Converter turns G711 frames into L16 frames and forwards them to its
// sinks.
type G711Converter struct {
	dispatcher
	codec CodecID
	track Track
	log   logging.LeveledLogger
	count uint64
}

// NewG711Converter creates a converter for a G711A or G711U track.
func NewG711Converter(track Track, lf logging.LoggerFactory) (*G711Converter, error) {
	if track == nil || (track.Codec() != CodecG711A && track.Codec() != CodecG711U) {
		codec := CodecInvalid
		if track != nil {
			codec = track.Codec()
		}
		return nil, fmt.Errorf("%w: %s is not G711", ErrCodecMismatch, codec)
	}
	return &G711Converter{
		codec: track.Codec(),
		track: track,
		log:   newLogger(lf, "g711"),
	}, nil
}

// OutputTrack describes the PCM produced by the converter.
func (c *G711Converter) OutputTrack() Track {
	rate, channels := 8000, 1
	if a, ok := c.track.(AudioInfo); ok {
		rate, channels = a.SampleRate(), a.Channels()
	}
	return NewAudioTrack(CodecL16, rate, channels, 16)
}

// Convert returns the L16 equivalent of frame, or nil for an empty frame.
func (c *G711Converter) Convert(frame *Frame) *Frame {
	payload := frame.Payload()
	if len(payload) == 0 {
		return nil
	}
	return &Frame{
		Codec: CodecL16,
		DTS:   frame.DTS,
		PTS:   frame.PTS,
		Data:  G711ToPCM(c.codec, payload),
		Key:   true,
		Index: frame.Index,
	}
}

// InputFrame converts frame and dispatches the result.
func (c *G711Converter) InputFrame(frame *Frame) bool {
	if frame.Codec != c.codec {
		c.log.Warnf("unexpected %s frame on %s converter", frame.Codec, c.codec)
		return false
	}
	out := c.Convert(frame)
	if out == nil {
		return false
	}
	c.count++
	if c.count%1000 == 1 {
		c.log.Debugf("%s->L16 converted %d frames", c.codec, c.count)
	}
	return c.dispatch(out)
}
