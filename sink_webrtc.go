package transcode

import (
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"golang.org/x/time/rate"
)

// RTPCodecCapability returns the WebRTC capability advertised for codec.
func RTPCodecCapability(codec CodecID) webrtc.RTPCodecCapability {
	c := webrtc.RTPCodecCapability{MimeType: codec.MimeType(), ClockRate: codec.ClockRate()}
	switch codec {
	case CodecOpus:
		c.MimeType = webrtc.MimeTypeOpus
		c.Channels = 2
		c.SDPFmtpLine = "minptime=10;useinbandfec=1"
	case CodecG711A:
		c.MimeType = webrtc.MimeTypePCMA
	case CodecG711U:
		c.MimeType = webrtc.MimeTypePCMU
	case CodecH264:
		c.MimeType = webrtc.MimeTypeH264
		c.SDPFmtpLine = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"
	case CodecH265:
		c.MimeType = webrtc.MimeTypeH265
	case CodecVP8:
		c.MimeType = webrtc.MimeTypeVP8
	case CodecVP9:
		c.MimeType = webrtc.MimeTypeVP9
		c.SDPFmtpLine = "profile-id=0"
	case CodecAAC:
		c.ClockRate = 44100
		c.Channels = 2
	case CodecL16:
		c.ClockRate = 8000
		c.Channels = 1
	}
	return c
}

// sampleWriter is the part of *webrtc.TrackLocalStaticSample TrackSink
// uses.
type sampleWriter interface {
	WriteSample(s media.Sample) error
	Codec() webrtc.RTPCodecCapability
}

// TrackSink writes frames as media samples to a local WebRTC track.
// Sample duration is the pts delta to the previous frame.
type TrackSink struct {
	track sampleWriter
	log   logging.LeveledLogger

	mu      sync.Mutex
	lastPTS int64
	hasLast bool
	written uint64

	errLog rate.Sometimes
}

// NewTrackSink creates a sink writing to track.
func NewTrackSink(track *webrtc.TrackLocalStaticSample, lf logging.LoggerFactory) *TrackSink {
	return newTrackSink(track, lf)
}

func newTrackSink(track sampleWriter, lf logging.LoggerFactory) *TrackSink {
	return &TrackSink{
		track:  track,
		log:    newLogger(lf, "webrtc"),
		errLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

func (s *TrackSink) accepts(codec CodecID) bool {
	return strings.EqualFold(s.track.Codec().MimeType, RTPCodecCapability(codec).MimeType)
}

// AddTrack accepts a track whose codec matches the WebRTC track.
func (s *TrackSink) AddTrack(track Track) bool {
	if !s.accepts(track.Codec()) {
		s.log.Warnf("webrtc track %s cannot carry %s", s.track.Codec().MimeType, track.Codec())
		return false
	}
	return true
}

// ResetTracks forgets the timing state.
func (s *TrackSink) ResetTracks() { s.ClearCache() }

// ClearCache forgets the last pts so the next sample restarts timing.
func (s *TrackSink) ClearCache() {
	s.mu.Lock()
	s.hasLast = false
	s.mu.Unlock()
}

// InputFrame writes one frame as a sample. AAC is written without its
// ADTS header.
func (s *TrackSink) InputFrame(frame *Frame) bool {
	if !s.accepts(frame.Codec) {
		return false
	}
	data := frame.Data
	if frame.Codec == CodecAAC {
		data = frame.Payload()
	}
	if len(data) == 0 {
		return false
	}

	s.mu.Lock()
	d := defaultSampleDuration(frame.Codec)
	if s.hasLast && frame.PTS > s.lastPTS {
		d = time.Duration(frame.PTS-s.lastPTS) * time.Millisecond
	}
	s.lastPTS, s.hasLast = frame.PTS, true
	s.mu.Unlock()

	if err := s.track.WriteSample(media.Sample{Data: data, Duration: d}); err != nil {
		s.errLog.Do(func() { s.log.Warnf("write sample: %v", err) })
		return false
	}
	s.mu.Lock()
	s.written++
	s.mu.Unlock()
	return true
}

// Written returns the number of samples written.
func (s *TrackSink) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func defaultSampleDuration(codec CodecID) time.Duration {
	switch codec {
	case CodecAAC:
		return 23 * time.Millisecond
	case CodecOpus, CodecG711A, CodecG711U, CodecL16:
		return 20 * time.Millisecond
	}
	return 33 * time.Millisecond
}
