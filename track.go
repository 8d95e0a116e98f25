package transcode

import "sync"

// Track describes one stream leg and forwards frames to its sinks.
//
// Parameters change only through the explicit setters; setters are not
// safe for concurrent use with InputFrame.
type Track interface {
	FrameWriter

	Codec() CodecID

	// Ready reports whether enough parameters are known to decode.
	Ready() bool

	// ExtraData returns the codec configuration blob, if any.
	ExtraData() []byte

	// Clone copies the parameters. Sinks are not copied.
	Clone() Track

	Bitrate() int
	SetBitrate(bps int)

	// AddSink registers a downstream consumer for frames passed to
	// InputFrame.
	AddSink(w FrameWriter)
}

// AudioInfo is implemented by audio tracks.
type AudioInfo interface {
	SampleRate() int
	Channels() int
	SampleBits() int
}

// VideoInfo is implemented by video tracks.
type VideoInfo interface {
	Width() int
	Height() int
}

// dispatcher fans frames out to registered sinks.
type dispatcher struct {
	mu    sync.RWMutex
	sinks []FrameWriter
}

func (d *dispatcher) AddSink(w FrameWriter) {
	d.mu.Lock()
	d.sinks = append(d.sinks, w)
	d.mu.Unlock()
}

// RemoveSinks detaches every sink.
func (d *dispatcher) RemoveSinks() {
	d.mu.Lock()
	d.sinks = nil
	d.mu.Unlock()
}

func (d *dispatcher) dispatch(f *Frame) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ret := false
	for _, s := range d.sinks {
		if s.InputFrame(f) {
			ret = true
		}
	}
	return ret
}

// AudioTrack carries sample-rate style parameters for any audio codec.
type AudioTrack struct {
	dispatcher
	codec      CodecID
	sampleRate int
	channels   int
	sampleBits int
	bitrate    int
	extra      []byte
}

// NewAudioTrack creates an audio track.
func NewAudioTrack(codec CodecID, sampleRate, channels, sampleBits int) *AudioTrack {
	return &AudioTrack{
		codec:      codec,
		sampleRate: sampleRate,
		channels:   channels,
		sampleBits: sampleBits,
	}
}

func (t *AudioTrack) Codec() CodecID     { return t.codec }
func (t *AudioTrack) SampleRate() int    { return t.sampleRate }
func (t *AudioTrack) Channels() int      { return t.channels }
func (t *AudioTrack) SampleBits() int    { return t.sampleBits }
func (t *AudioTrack) Bitrate() int       { return t.bitrate }
func (t *AudioTrack) SetBitrate(bps int) { t.bitrate = bps }
func (t *AudioTrack) Ready() bool        { return t.sampleRate > 0 && t.channels > 0 }
func (t *AudioTrack) ExtraData() []byte  { return t.extra }

// SetExtraData replaces the codec configuration blob.
func (t *AudioTrack) SetExtraData(b []byte) {
	t.extra = append([]byte(nil), b...)
}

// SetAudioParams updates rate, channels and bit depth.
func (t *AudioTrack) SetAudioParams(sampleRate, channels, sampleBits int) {
	t.sampleRate, t.channels, t.sampleBits = sampleRate, channels, sampleBits
}

func (t *AudioTrack) Clone() Track {
	c := NewAudioTrack(t.codec, t.sampleRate, t.channels, t.sampleBits)
	c.bitrate = t.bitrate
	c.extra = append([]byte(nil), t.extra...)
	return c
}

func (t *AudioTrack) InputFrame(f *Frame) bool { return t.dispatch(f) }

// VideoTrack carries picture dimensions for any video codec.
type VideoTrack struct {
	dispatcher
	codec   CodecID
	width   int
	height  int
	bitrate int
	extra   []byte
}

// NewVideoTrack creates a video track.
func NewVideoTrack(codec CodecID, width, height int) *VideoTrack {
	return &VideoTrack{codec: codec, width: width, height: height}
}

func (t *VideoTrack) Codec() CodecID     { return t.codec }
func (t *VideoTrack) Width() int         { return t.width }
func (t *VideoTrack) Height() int        { return t.height }
func (t *VideoTrack) Bitrate() int       { return t.bitrate }
func (t *VideoTrack) SetBitrate(bps int) { t.bitrate = bps }
func (t *VideoTrack) Ready() bool        { return t.width > 0 && t.height > 0 }
func (t *VideoTrack) ExtraData() []byte  { return t.extra }

// SetExtraData replaces the codec configuration blob (SPS/PPS etc).
func (t *VideoTrack) SetExtraData(b []byte) {
	t.extra = append([]byte(nil), b...)
}

// SetVideoSize updates the picture dimensions.
func (t *VideoTrack) SetVideoSize(width, height int) {
	t.width, t.height = width, height
}

func (t *VideoTrack) Clone() Track {
	c := NewVideoTrack(t.codec, t.width, t.height)
	c.bitrate = t.bitrate
	c.extra = append([]byte(nil), t.extra...)
	return c
}

func (t *VideoTrack) InputFrame(f *Frame) bool { return t.dispatch(f) }

// NewTrackByCodec builds a track with codec defaults for zero parameters.
// G711 defaults to 8000 Hz mono, Opus to 48000 Hz stereo, AAC to 44100 Hz
// stereo; all at 16 bits.
func NewTrackByCodec(codec CodecID, sampleRate, channels, sampleBits int) Track {
	if sampleBits == 0 {
		sampleBits = 16
	}
	def := func(rate, ch int) {
		if sampleRate == 0 {
			sampleRate = rate
		}
		if channels == 0 {
			channels = ch
		}
	}
	switch codec {
	case CodecAAC:
		def(44100, 2)
		return NewAACTrack(sampleRate, channels, sampleBits)
	case CodecG711A, CodecG711U:
		def(8000, 1)
	case CodecOpus:
		def(48000, 2)
	case CodecL16:
		def(8000, 1)
	case CodecH264, CodecH265, CodecVP8, CodecVP9:
		return NewVideoTrack(codec, 0, 0)
	default:
		return nil
	}
	return NewAudioTrack(codec, sampleRate, channels, sampleBits)
}
