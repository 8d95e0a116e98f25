package transcode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"golang.org/x/time/rate"
)

// DefaultMTU is the RTP packet size limit used when none is configured.
const DefaultMTU = 1200

const (
	rtpHeaderSize       = 12
	defaultRTPCacheSize = 512
)

// RTPSinkOptions configures an RTPSink.
type RTPSinkOptions struct {
	// PayloadType defaults to the codec's DefaultPayloadType.
	PayloadType uint8

	// SSRC is random when zero.
	SSRC uint32

	MTU int

	// CacheSize bounds the replay cache in packets.
	CacheSize int

	LoggerFactory logging.LoggerFactory
}

// RTPSinkStats contains RTP sink statistics.
type RTPSinkStats struct {
	Frames      uint64
	Packets     uint64
	Bytes       uint64
	WriteErrors uint64
	Cached      int
}

// RTPSink packetizes frames of one track and writes the marshalled
// packets to w. It keeps the packets sent since the last video key frame,
// or the most recent audio packets, so a late joiner can be primed.
type RTPSink struct {
	codec     CodecID
	pt        uint8
	ssrc      uint32
	mtu       int
	clockRate uint32
	channels  int
	cacheSize int

	w   io.Writer
	log logging.LeveledLogger

	mu        sync.Mutex
	sequencer rtp.Sequencer
	payloader rtp.Payloader
	cache     []*rtp.Packet

	errLog rate.Sometimes

	frames, packets, bytes, writeErrors atomic.Uint64
}

// NewRTPSink creates a sink for track. w may be nil, in which case packets
// are only cached.
func NewRTPSink(track Track, w io.Writer, opts RTPSinkOptions) (*RTPSink, error) {
	codec := track.Codec()
	payloader, err := newPayloader(codec)
	if err != nil {
		return nil, err
	}
	s := &RTPSink{
		codec:     codec,
		pt:        opts.PayloadType,
		ssrc:      opts.SSRC,
		mtu:       opts.MTU,
		cacheSize: opts.CacheSize,
		w:         w,
		log:       newLogger(opts.LoggerFactory, "rtp"),
		sequencer: rtp.NewRandomSequencer(),
		payloader: payloader,
		errLog:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	if s.pt == 0 {
		s.pt = codec.DefaultPayloadType()
	}
	if s.ssrc == 0 {
		s.ssrc = rand.Uint32()
	}
	if s.mtu <= rtpHeaderSize+4 {
		s.mtu = DefaultMTU
	}
	if s.cacheSize <= 0 {
		s.cacheSize = defaultRTPCacheSize
	}
	if !s.setTrack(track) {
		return nil, fmt.Errorf("%w: no clock rate for %s track", ErrInvalidConfig, codec)
	}
	return s, nil
}

func newPayloader(codec CodecID) (rtp.Payloader, error) {
	switch codec {
	case CodecH264:
		return &codecs.H264Payloader{}, nil
	case CodecH265:
		return &codecs.H265Payloader{}, nil
	case CodecVP8:
		return &codecs.VP8Payloader{EnablePictureID: true}, nil
	case CodecVP9:
		return &codecs.VP9Payloader{}, nil
	case CodecOpus:
		return &codecs.OpusPayloader{}, nil
	case CodecG711A, CodecG711U:
		return &codecs.G711Payloader{}, nil
	case CodecAAC:
		return &aacPayloader{}, nil
	case CodecL16:
		return &l16Payloader{}, nil
	}
	return nil, fmt.Errorf("%w: no rtp payloader for %s", ErrEngineNotFound, codec)
}

func (s *RTPSink) setTrack(track Track) bool {
	clock := s.codec.ClockRate()
	channels := 1
	if a, ok := track.(AudioInfo); ok {
		if clock == 0 {
			clock = uint32(a.SampleRate())
		}
		if a.Channels() > 0 {
			channels = a.Channels()
		}
	}
	if clock == 0 {
		return false
	}
	s.mu.Lock()
	s.clockRate, s.channels = clock, channels
	if p, ok := s.payloader.(*l16Payloader); ok {
		p.frameSize = 2 * channels
	}
	s.mu.Unlock()
	return true
}

func (s *RTPSink) Codec() CodecID        { return s.codec }
func (s *RTPSink) SSRC() uint32          { return s.ssrc }
func (s *RTPSink) PayloadType() uint8    { return s.pt }
func (s *RTPSink) ClockRate() uint32     { s.mu.Lock(); defer s.mu.Unlock(); return s.clockRate }
func (s *RTPSink) SetWriter(w io.Writer) { s.mu.Lock(); s.w = w; s.mu.Unlock() }

// AddTrack accepts a track of the sink's codec and adopts its clock.
func (s *RTPSink) AddTrack(track Track) bool {
	if track.Codec() != s.codec {
		s.log.Warnf("rtp sink for %s got %s track", s.codec, track.Codec())
		return false
	}
	return s.setTrack(track)
}

// ResetTracks drops the replay cache.
func (s *RTPSink) ResetTracks() { s.ClearCache() }

// InputFrame packetizes frame and writes every packet.
func (s *RTPSink) InputFrame(frame *Frame) bool {
	if frame.Codec != s.codec {
		return false
	}
	pkts := s.Packetize(frame)
	if len(pkts) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames.Add(1)
	if frame.Key && s.codec.Kind() == KindVideo {
		s.cache = s.cache[:0]
	}
	for _, p := range pkts {
		s.cachePacket(p)
		if s.w == nil {
			continue
		}
		buf, err := p.Marshal()
		if err == nil {
			_, err = s.w.Write(buf)
		}
		if err != nil {
			s.writeErrors.Add(1)
			s.errLog.Do(func() { s.log.Warnf("write rtp packet: %v", err) })
			continue
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(len(buf)))
	}
	return true
}

func (s *RTPSink) cachePacket(p *rtp.Packet) {
	if len(s.cache) >= s.cacheSize {
		copy(s.cache, s.cache[1:])
		s.cache = s.cache[:len(s.cache)-1]
	}
	s.cache = append(s.cache, p)
}

// Packetize converts frame into RTP packets without writing them. The
// timestamp is pts scaled to the codec clock.
func (s *RTPSink) Packetize(frame *Frame) []*rtp.Packet {
	data := frame.Data
	if s.codec == CodecAAC {
		data = frame.Payload()
	}
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	payloads := s.payloader.Payload(uint16(s.mtu-rtpHeaderSize), data)
	if len(payloads) == 0 {
		return nil
	}
	ts := uint32(frame.PTS * int64(s.clockRate) / 1000)
	pkts := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		pkts[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    s.pt,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		if s.codec == CodecL16 {
			// Each L16 packet carries its own samples.
			ts += uint32(len(payload) / (2 * s.channels))
		}
	}
	return pkts
}

// Packets returns the cached packets for priming a new reader.
func (s *RTPSink) Packets() []*rtp.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rtp.Packet(nil), s.cache...)
}

// ClearCache drops the replay cache and resets the counters.
func (s *RTPSink) ClearCache() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
	s.frames.Store(0)
	s.packets.Store(0)
	s.bytes.Store(0)
	s.writeErrors.Store(0)
}

// Stats returns sink statistics.
func (s *RTPSink) Stats() RTPSinkStats {
	s.mu.Lock()
	cached := len(s.cache)
	s.mu.Unlock()
	return RTPSinkStats{
		Frames:      s.frames.Load(),
		Packets:     s.packets.Load(),
		Bytes:       s.bytes.Load(),
		WriteErrors: s.writeErrors.Load(),
		Cached:      cached,
	}
}

// aacPayloader implements RFC 3640 AAC-hbr: a 16-bit AU-headers-length
// followed by one 16-bit AU header (13-bit size, 3-bit index). An access
// unit larger than the MTU is fragmented, every fragment repeating the
// header of the whole unit.
type aacPayloader struct{}

const aacAUHeaderSection = 4

func (p *aacPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	if len(payload) == 0 || len(payload) > 0x1FFF || int(mtu) <= aacAUHeaderSection {
		return nil
	}
	var hdr [aacAUHeaderSection]byte
	binary.BigEndian.PutUint16(hdr[0:], 16)
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(payload))<<3)

	limit := int(mtu) - aacAUHeaderSection
	var out [][]byte
	for len(payload) > 0 {
		n := min(limit, len(payload))
		buf := make([]byte, aacAUHeaderSection+n)
		copy(buf, hdr[:])
		copy(buf[aacAUHeaderSection:], payload[:n])
		out = append(out, buf)
		payload = payload[n:]
	}
	return out
}

// l16Payloader splits little-endian PCM on sample frame boundaries and
// writes the samples in network byte order.
type l16Payloader struct {
	frameSize int
}

func (p *l16Payloader) Payload(mtu uint16, payload []byte) [][]byte {
	fs := max(p.frameSize, 2)
	limit := int(mtu) / fs * fs
	if limit == 0 {
		return nil
	}
	payload = payload[:len(payload)/fs*fs]
	var out [][]byte
	for len(payload) > 0 {
		n := min(limit, len(payload))
		buf := make([]byte, n)
		for i := 0; i+1 < n; i += 2 {
			buf[i], buf[i+1] = payload[i+1], payload[i]
		}
		out = append(out, buf)
		payload = payload[n:]
	}
	return out
}
