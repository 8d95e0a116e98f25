package transcode

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
)

// fallbackAACConfig is AAC-LC, 44100 Hz, stereo.
var fallbackAACConfig = []byte{0x12, 0x10}

// AACTrack is an AAC audio track. Incoming frames are normalized to one
// ADTS-framed access unit per frame before they reach the sinks.
type AACTrack struct {
	dispatcher
	cfg        []byte
	sampleRate int
	channels   int
	sampleBits int
	bitrate    int

	log   logging.LeveledLogger
	count uint64

	dec *Decoder
	enc *Encoder
}

// NewAACTrack creates an AAC-LC track and derives its AudioSpecificConfig.
// With zero channels the track has no config until the header of its first
// ADTS-framed input supplies one.
func NewAACTrack(sampleRate, channels, sampleBits int) *AACTrack {
	t := &AACTrack{
		sampleRate: sampleRate,
		channels:   channels,
		sampleBits: sampleBits,
		log:        newLogger(nil, "track"),
	}
	if channels > 0 {
		t.cfg = AACConfig(sampleRate, channels)
	}
	t.log.Debugf("aac track %d Hz, %d channels", sampleRate, channels)
	return t
}

// NewAACTrackFromConfig creates a track from an AudioSpecificConfig. A
// config that is an ASCII digit string is a known producer bug and is
// replaced by the 44100 Hz stereo default.
func NewAACTrackFromConfig(cfg []byte) (*AACTrack, error) {
	t := &AACTrack{sampleBits: 16, log: newLogger(nil, "track")}
	if err := t.SetExtraData(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

func isDigitConfig(cfg []byte) bool {
	if len(cfg) < 4 {
		return false
	}
	for _, c := range cfg[:4] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SetLoggerFactory replaces the track logger.
func (t *AACTrack) SetLoggerFactory(lf logging.LoggerFactory) {
	t.log = newLogger(lf, "track")
}

func (t *AACTrack) Codec() CodecID     { return CodecAAC }
func (t *AACTrack) SampleRate() int    { return t.sampleRate }
func (t *AACTrack) Channels() int      { return t.channels }
func (t *AACTrack) SampleBits() int    { return t.sampleBits }
func (t *AACTrack) SetBitrate(bps int) { t.bitrate = bps }
func (t *AACTrack) Ready() bool        { return t.channels != 0 }

// Bitrate returns the configured bitrate, or sample_rate*channels when
// none was set.
func (t *AACTrack) Bitrate() int {
	if t.bitrate > 0 {
		return t.bitrate
	}
	return t.sampleRate * t.channels
}

// ExtraData returns the AudioSpecificConfig.
func (t *AACTrack) ExtraData() []byte { return t.cfg }

// SetExtraData replaces the AudioSpecificConfig and re-derives rate and
// channels from it.
func (t *AACTrack) SetExtraData(cfg []byte) error {
	if isDigitConfig(cfg) {
		t.log.Warnf("invalid aac config (digit string) %x, using default", cfg)
		cfg = fallbackAACConfig
	}
	if len(cfg) < 2 {
		return fmt.Errorf("%w: aac config must be at least 2 bytes, got %d", ErrInvalidConfig, len(cfg))
	}
	rate, channels, err := ParseAACConfig(cfg)
	if err != nil {
		return err
	}
	t.cfg = append([]byte(nil), cfg...)
	t.sampleRate, t.channels = rate, channels
	return nil
}

func (t *AACTrack) Clone() Track {
	c := &AACTrack{
		cfg:        append([]byte(nil), t.cfg...),
		sampleRate: t.sampleRate,
		channels:   t.channels,
		sampleBits: t.sampleBits,
		bitrate:    t.bitrate,
		log:        t.log,
	}
	return c
}

// EnableReencode routes every unit through an AAC decoder and encoder
// before it reaches the sinks, normalizing whatever the producer sent.
// No AAC engine is built in: the registries in dopts and eopts must carry
// one, otherwise it fails with ErrEngineNotFound and the track is left
// unchanged.
func (t *AACTrack) EnableReencode(dopts DecoderOptions, eopts EncoderOptions) error {
	if t.dec != nil {
		return nil
	}
	src := t.Clone()
	dec, err := NewDecoder(src, dopts)
	if err != nil {
		return err
	}
	dst := NewAACTrack(t.sampleRate, t.channels, t.sampleBits)
	dst.SetBitrate(t.Bitrate())
	enc, err := NewEncoder(dst, eopts)
	if err != nil {
		dec.Close()
		return err
	}
	dec.SetOnDecode(func(raw RawFrame) { enc.Encode(raw, false) })
	enc.SetOnEncode(func(f *Frame) { t.dispatch(f) })
	t.dec, t.enc = dec, enc
	t.log.Infof("aac re-encode enabled, sample rate: %d, channels: %d", t.sampleRate, t.channels)
	return nil
}

// InputFrame accepts raw or ADTS-framed AAC. Raw units get a header built
// from the track config; framed input may carry several units, which are
// split and forwarded one by one. A track without a config takes it from
// the first ADTS header and refuses raw units until then.
func (t *AACTrack) InputFrame(frame *Frame) bool {
	if !t.Ready() && frame.Prefix > 0 {
		t.configFromADTS(frame.Data)
	}
	if !t.Ready() {
		return false
	}
	if frame.Prefix == 0 {
		framed, err := AddADTSHeader(frame, t.cfg)
		if err != nil {
			t.log.Warnf("add adts header: %v", err)
			return false
		}
		return t.inputUnit(framed)
	}
	return SplitADTS(frame, t.sampleRate, t.log, t.inputUnit)
}

func (t *AACTrack) configFromADTS(hdr []byte) {
	cfg, err := AACConfigFromADTS(hdr)
	if err == nil {
		err = t.SetExtraData(cfg)
	}
	if err != nil {
		t.log.Warnf("aac config from adts: %v", err)
		return
	}
	t.log.Debugf("aac config %x from adts, %d Hz, %d channels", t.cfg, t.sampleRate, t.channels)
}

func (t *AACTrack) inputUnit(frame *Frame) bool {
	if frame.Size() <= frame.Prefix {
		return false
	}
	t.count++
	if t.count%100 == 0 {
		t.log.Debugf("aac track processed %d frames", t.count)
	}
	if t.dec != nil {
		t.dec.Decode(frame, true, false, true)
		return true
	}
	t.dispatch(frame)
	return true
}

// Close releases the re-encode pipeline, if any.
func (t *AACTrack) Close() error {
	if t.dec == nil {
		return nil
	}
	var result *multierror.Error
	if err := t.dec.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.enc.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	t.dec, t.enc = nil, nil
	return result.ErrorOrNil()
}

// SDP renders the RTP media description for payload type pt using the
// RFC 3640 AAC-hbr mode. It is empty until the track is ready.
func (t *AACTrack) SDP(pt int) string {
	if !t.Ready() || len(t.cfg) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "m=audio 0 RTP/AVP %d\r\n", pt)
	if kbps := t.Bitrate() >> 10; kbps > 0 {
		fmt.Fprintf(&b, "b=AS:%d\r\n", kbps)
	}
	fmt.Fprintf(&b, "a=rtpmap:%d mpeg4-generic/%d/%d\r\n", pt, t.sampleRate, t.channels)
	fmt.Fprintf(&b, "a=fmtp:%d streamtype=5;profile-level-id=1;mode=AAC-hbr;"+
		"sizelength=13;indexlength=3;indexdeltalength=3;config=%X\r\n", pt, t.cfg)
	return b.String()
}
