package transcode

import (
	"fmt"

	"github.com/pion/logging"
)

// ADTSHeaderSize is the length of an ADTS header without CRC.
const ADTSHeaderSize = 7

var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

// aacSampleRateIndex maps a rate to its sampling-frequency index. Unknown
// rates fall back to 44100 Hz (index 4).
func aacSampleRateIndex(rate int) byte {
	for i, r := range aacSampleRates {
		if r == rate {
			return byte(i)
		}
	}
	return 4
}

// AACConfig builds a 2-byte AAC-LC AudioSpecificConfig.
func AACConfig(sampleRate, channels int) []byte {
	const profile = 2 // AAC LC
	idx := aacSampleRateIndex(sampleRate)
	return []byte{
		profile<<3 | idx>>1,
		(idx&0x01)<<7 | byte(channels)<<3,
	}
}

// ParseAACConfig extracts the sample rate and channel count from an
// AudioSpecificConfig.
func ParseAACConfig(cfg []byte) (sampleRate, channels int, err error) {
	if len(cfg) < 2 {
		return 0, 0, fmt.Errorf("%w: aac config must be at least 2 bytes, got %d", ErrInvalidConfig, len(cfg))
	}
	idx := int(cfg[0]&0x07)<<1 | int(cfg[1]>>7)
	if idx >= len(aacSampleRates) {
		return 0, 0, fmt.Errorf("%w: aac sampling frequency index %d", ErrInvalidConfig, idx)
	}
	channels = int(cfg[1]>>3) & 0x0F
	return aacSampleRates[idx], channels, nil
}

// MakeADTSHeader writes the 7-byte ADTS header for a payload of payloadLen
// bytes into out and returns the number of bytes written.
//
// Layout: syncword 0xFFF, MPEG-4, layer 0, protection absent, profile (2),
// sampling index (4), private (1), channel config (3), original/home and
// copyright bits (4), frame length (13), buffer fullness 0x7FF (11),
// raw data blocks minus one (2).
func MakeADTSHeader(cfg []byte, payloadLen int, out []byte) (int, error) {
	if len(cfg) < 2 {
		return 0, fmt.Errorf("%w: aac config must be at least 2 bytes, got %d", ErrInvalidConfig, len(cfg))
	}
	if len(out) < ADTSHeaderSize {
		return 0, fmt.Errorf("adts header needs %d bytes, buffer has %d", ADTSHeaderSize, len(out))
	}
	length := ADTSHeaderSize + payloadLen
	if length > 0x1FFF {
		return 0, fmt.Errorf("%w: aac frame of %d bytes exceeds adts length field", ErrInvalidData, length)
	}
	objectType := cfg[0] >> 3
	if objectType == 0 {
		return 0, fmt.Errorf("%w: aac object type 0", ErrInvalidConfig)
	}
	profile := objectType - 1
	sfIndex := (cfg[0]&0x07)<<1 | cfg[1]>>7
	channel := (cfg[1] >> 3) & 0x0F
	const fullness = 0x7FF

	out[0] = 0xFF
	out[1] = 0xF1
	out[2] = (profile&0x03)<<6 | (sfIndex&0x0F)<<2 | (channel>>2)&0x01
	out[3] = (channel&0x03)<<6 | byte(length>>11)&0x03
	out[4] = byte(length >> 3)
	out[5] = byte(length&0x07)<<5 | byte(fullness>>6)
	out[6] = byte(fullness&0x3F) << 2
	return ADTSHeaderSize, nil
}

// ADTSFrameLength returns the 13-bit frame length declared by the header at
// the start of b, or -1 if b does not start with a valid header.
func ADTSFrameLength(b []byte) int {
	if len(b) < ADTSHeaderSize {
		return -1
	}
	if b[0] != 0xFF || b[1]&0xF0 != 0xF0 {
		return -1
	}
	return int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5]>>5)
}

// AACConfigFromADTS derives the AudioSpecificConfig from an ADTS header.
func AACConfigFromADTS(hdr []byte) ([]byte, error) {
	if ADTSFrameLength(hdr) < 0 {
		return nil, fmt.Errorf("%w: not an adts header", ErrInvalidData)
	}
	profile := (hdr[2] & 0xC0) >> 6
	sfIndex := (hdr[2] & 0x3C) >> 2
	channel := (hdr[2]&0x01)<<2 | (hdr[3]&0xC0)>>6
	return []byte{
		(profile+1)<<3 | (sfIndex&0x0E)>>1,
		(sfIndex&0x01)<<7 | channel<<3,
	}, nil
}

// AddADTSHeader returns a new frame holding an ADTS header followed by the
// payload of frame. The result has Prefix set to the header length.
func AddADTSHeader(frame *Frame, cfg []byte) (*Frame, error) {
	payload := frame.Payload()
	buf := make([]byte, ADTSHeaderSize+len(payload))
	n, err := MakeADTSHeader(cfg, len(payload), buf)
	if err != nil {
		return nil, err
	}
	copy(buf[n:], payload)
	return &Frame{
		Codec:  CodecAAC,
		DTS:    frame.DTS,
		PTS:    frame.PTS,
		Data:   buf,
		Prefix: n,
		Key:    true,
		Index:  frame.Index,
	}, nil
}

// SplitADTS walks back-to-back ADTS units in frame and calls emit for
// each, advancing timestamps by one AAC frame (1024 samples) per unit.
// Units share frame's buffer. A frame holding exactly one unit is passed
// through unchanged. Splitting stops at the first invalid or truncated
// unit; units already emitted stand. It returns true if any emit call did.
func SplitADTS(frame *Frame, sampleRate int, log logging.LeveledLogger, emit func(*Frame) bool) bool {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	step := int64(aacSamplesPerFrame * 1000 / sampleRate)
	dts, pts := frame.DTS, frame.PTS
	data := frame.Data
	ret := false

	for off := 0; off < len(data); {
		n := ADTSFrameLength(data[off:])
		if n < ADTSHeaderSize {
			break
		}
		if off == 0 && n == len(data) {
			return emit(frame)
		}
		if off+n > len(data) {
			if log != nil {
				log.Warnf("invalid aac length in adts header: %d, remain data size: %d", n, len(data)-off)
			}
			break
		}
		if emit(frame.Slice(off, n, dts, pts, ADTSHeaderSize)) {
			ret = true
		}
		off += n
		dts += step
		pts += step
	}
	return ret
}
