package transcode

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Config supplies demand, audio_transcode, transcode_aac and the
	// target bitrates. Nil uses DefaultConfig.
	Config *Config

	// Target is the codec audio is converted to: CodecOpus (default) or
	// CodecAAC.
	Target CodecID

	Registry      *Registry
	LoggerFactory logging.LoggerFactory
}

// ControllerStats contains controller statistics.
type ControllerStats struct {
	ID          string
	Target      CodecID
	Enabled     bool
	Demand      bool
	Readers     int
	Registered  bool
	Transcoding uint64 // frames decoded since the current run started
	Forwarded   uint64 // frames passed to the sink untouched
	Declined    uint64 // frames refused while disabled
	Clears      uint64
	Decoder     *DecoderStats
	Encoder     *EncoderStats
}

// Controller gates one media leg on reader demand and converts audio
// codecs the downstream cannot carry to the target codec.
//
// While demand mode is on and nobody reads, frames are declined. When the
// reader count drops to zero a cache clear is scheduled so that the next
// frame handled flushes stale data from the sink before anything new
// reaches it.
type Controller struct {
	id     uuid.UUID
	sink   Sink
	cfg    Config
	target CodecID
	reg    *Registry
	lf     logging.LoggerFactory
	log    logging.LeveledLogger

	mu           sync.Mutex
	enabled      bool
	clearPending bool
	readers      int
	registered   bool
	count        uint64
	pipe         *transcodePair
	failed       map[CodecID]bool

	closed atomic.Bool

	forwarded, declined, clears atomic.Uint64
}

// NewController creates a controller delivering into sink.
func NewController(sink Sink, opts ControllerOptions) *Controller {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	c := &Controller{
		id:      uuid.New(),
		sink:    sink,
		cfg:     cfg,
		target:  opts.Target,
		reg:     opts.Registry,
		lf:      opts.LoggerFactory,
		log:     newLogger(opts.LoggerFactory, "controller"),
		enabled: true,
	}
	switch c.target {
	case CodecOpus, CodecAAC:
	case CodecInvalid:
		c.target = CodecOpus
	default:
		c.log.Warnf("[%s] unsupported target %s, using opus", c.id, c.target)
		c.target = CodecOpus
	}
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id.String() }

// Target returns the codec audio is converted to.
func (c *Controller) Target() CodecID { return c.target }

// NeedTransToOpus reports whether codec is converted when the target is
// Opus. G711 always is; AAC only with transcode_aac and a registered AAC
// decoder.
func (c *Controller) NeedTransToOpus(codec CodecID) bool {
	switch codec {
	case CodecG711A, CodecG711U:
		return true
	case CodecAAC:
		return c.cfg.TranscodeAAC && c.registry().CanDecode(CodecAAC)
	default:
		return false
	}
}

// NeedTransToAAC reports whether codec is converted when the target is AAC.
func (c *Controller) NeedTransToAAC(codec CodecID) bool {
	switch codec {
	case CodecG711A, CodecG711U, CodecOpus:
		return true
	default:
		return false
	}
}

func (c *Controller) registry() *Registry {
	if c.reg == nil {
		return DefaultRegistry
	}
	return c.reg
}

// needTranscode also reports false for a codec whose pipeline failed to
// build; its frames are passed through until the tracks are reset.
func (c *Controller) needTranscode(codec CodecID) bool {
	if !c.cfg.AudioTranscode {
		return false
	}
	c.mu.Lock()
	failed := c.failed[codec]
	c.mu.Unlock()
	if failed {
		return false
	}
	if c.target == CodecAAC {
		return c.NeedTransToAAC(codec)
	}
	return c.NeedTransToOpus(codec)
}

// AddTrack announces a source track. A track that needs conversion gets a
// decoder and encoder, and the sink sees the target track instead. If the
// pipeline cannot be built the original track is forwarded and the codec
// is passed through from then on.
func (c *Controller) AddTrack(track Track) bool {
	out := track
	if c.needTranscode(track.Codec()) {
		dst := c.targetTrack()
		pipe, err := newTranscodePair(track, dst, &c.cfg, c.reg, c.lf, func(f *Frame) {
			c.sink.InputFrame(f)
		})
		if err != nil {
			c.log.Errorf("[%s] create %s->%s transcoder: %v", c.id, track.Codec(), c.target, err)
			c.mu.Lock()
			if c.failed == nil {
				c.failed = make(map[CodecID]bool)
			}
			c.failed[track.Codec()] = true
			c.mu.Unlock()
		} else {
			c.mu.Lock()
			old := c.pipe
			c.pipe = pipe
			c.mu.Unlock()
			if old != nil {
				if err := old.close(); err != nil {
					c.log.Warnf("[%s] close previous transcoder: %v", c.id, err)
				}
			}
			c.log.Infof("[%s] transcode %s->%s with %s/%s", c.id, track.Codec(), c.target, pipe.dec.Engine(), pipe.enc.Engine())
			out = dst
		}
	}
	return c.sink.AddTrack(out)
}

func (c *Controller) targetTrack() Track {
	t := NewTrackByCodec(c.target, 0, 0, 0)
	switch c.target {
	case CodecOpus:
		t.SetBitrate(c.cfg.OpusBitrate)
	case CodecAAC:
		if c.cfg.AACBitrate > 0 {
			t.SetBitrate(c.cfg.AACBitrate)
		}
	}
	return t
}

// sourceTrack builds the track assumed for a codec that was never
// announced through AddTrack.
func sourceTrack(codec CodecID) Track {
	switch codec {
	case CodecAAC:
		return NewTrackByCodec(CodecAAC, 44100, 2, 16)
	case CodecG711A, CodecG711U, CodecOpus:
		return NewTrackByCodec(codec, 0, 0, 0)
	}
	return nil
}

func (c *Controller) pipeline() *transcodePair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe
}

// InputFrame delivers one source frame. Frames needing conversion are
// decoded synchronously and reach the sink from the encoder callback;
// they report true whether or not anyone was reading. Other frames go to
// the sink directly.
func (c *Controller) InputFrame(frame *Frame) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	flush := c.clearPending && c.cfg.Demand
	if flush {
		c.clearPending = false
	}
	open := c.enabled || !c.cfg.Demand
	c.mu.Unlock()

	if flush {
		c.clears.Add(1)
		c.sink.ClearCache()
	}
	if !open {
		c.declined.Add(1)
		return false
	}
	if !c.needTranscode(frame.Codec) {
		c.forwarded.Add(1)
		return c.sink.InputFrame(frame)
	}

	pipe := c.pipeline()
	if pipe == nil {
		if src := sourceTrack(frame.Codec); src != nil {
			c.AddTrack(src)
		}
		if pipe = c.pipeline(); pipe == nil {
			c.forwarded.Add(1)
			return c.sink.InputFrame(frame)
		}
	}

	c.mu.Lock()
	active := c.readers > 0 || !c.registered
	if active {
		if c.count == 0 {
			c.log.Infof("[%s] start transcode %s,%d->%s", c.id, frame.Codec, frame.PTS, c.target)
		}
		c.count++
	} else if c.count > 0 {
		c.log.Infof("[%s] stop transcode with %d items", c.id, c.count)
		c.count = 0
	}
	c.mu.Unlock()

	if active {
		pipe.dec.Decode(frame, true, false, true)
	}
	return true
}

// OnReaderChanged records the number of downstream readers. In demand mode
// output stops at zero readers and a cache clear is scheduled.
func (c *Controller) OnReaderChanged(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readers = n
	c.enabled = !c.cfg.Demand || n > 0
	if n == 0 && c.cfg.Demand {
		c.clearPending = true
	}
}

// OnRegist records whether the source is registered with readers. An
// unregistered source is always transcoded, as is usual for push legs.
func (c *Controller) OnRegist(registered bool) {
	c.mu.Lock()
	c.registered = registered
	c.mu.Unlock()
}

// ReaderCount returns the last reported number of readers.
func (c *Controller) ReaderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readers
}

// IsEnabled reports whether the producer should keep feeding frames. It
// stays true while a cache clear is pending so the clear can happen.
func (c *Controller) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.Demand {
		return true
	}
	return c.clearPending || c.enabled
}

// ResetTracks drops the conversion pipeline and resets the sink.
func (c *Controller) ResetTracks() {
	if err := c.resetPipeline(); err != nil {
		c.log.Warnf("[%s] close transcoder: %v", c.id, err)
	}
	c.sink.ResetTracks()
}

func (c *Controller) resetPipeline() error {
	c.mu.Lock()
	pipe := c.pipe
	c.pipe = nil
	c.failed = nil
	if c.count > 0 {
		c.log.Infof("[%s] stop transcode with %d items", c.id, c.count)
		c.count = 0
	}
	c.mu.Unlock()
	if pipe == nil {
		return nil
	}
	return pipe.close()
}

// Close releases the pipeline and resets the sink. Further frames are
// declined.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.resetPipeline()
	c.sink.ResetTracks()
	return err
}

// Stats returns controller statistics.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	s := ControllerStats{
		ID:          c.id.String(),
		Target:      c.target,
		Enabled:     c.enabled,
		Demand:      c.cfg.Demand,
		Readers:     c.readers,
		Registered:  c.registered,
		Transcoding: c.count,
	}
	pipe := c.pipe
	c.mu.Unlock()

	s.Forwarded = c.forwarded.Load()
	s.Declined = c.declined.Load()
	s.Clears = c.clears.Load()
	if pipe != nil {
		ds, es := pipe.dec.Stats(), pipe.enc.Stats()
		s.Decoder, s.Encoder = &ds, &es
	}
	return s
}

// transcodePair is a decoder whose output feeds an encoder.
type transcodePair struct {
	dec *Decoder
	enc *Encoder
}

func newTranscodePair(src, dst Track, cfg *Config, reg *Registry, lf logging.LoggerFactory, out func(*Frame)) (*transcodePair, error) {
	dec, err := NewDecoder(src, DecoderOptions{Registry: reg, LoggerFactory: lf, Config: cfg})
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder(dst, EncoderOptions{Registry: reg, LoggerFactory: lf, Config: cfg})
	if err != nil {
		dec.Close()
		return nil, err
	}
	dec.SetOnDecode(func(raw RawFrame) { enc.Encode(raw, false) })
	enc.SetOnEncode(out)
	return &transcodePair{dec: dec, enc: enc}, nil
}

// close shuts the decoder first so its drained output still reaches the
// encoder.
func (p *transcodePair) close() error {
	var result *multierror.Error
	if err := p.dec.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.enc.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
