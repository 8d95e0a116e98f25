package transcode

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DecoderOptions configures NewDecoder. Zero values fall back to Config.
type DecoderOptions struct {
	// Preferred lists implementation names tried before the priority list.
	Preferred []string

	Threads     int
	MaxTaskSize int

	Registry      *Registry // defaults to DefaultRegistry
	LoggerFactory logging.LoggerFactory
	Config        *Config // defaults to DefaultConfig()
}

// DecoderStats contains decoder statistics.
type DecoderStats struct {
	ID         string
	Engine     string
	Decoded    uint64 // frames delivered to the callback
	Stale      uint64 // frames dropped by the live filter
	SendErrors uint64
	Queue      TaskQueueStats
}

// Decoder turns compressed frames of one track into raw frames.
//
// Audio always decodes on the caller. Video can be handed to a dedicated
// worker with async decoding; the worker applies the decode drop policy so
// a slow decoder skips to the next key frame instead of falling behind.
type Decoder struct {
	id     uuid.UUID
	track  Track
	codec  CodecID
	engine DecoderEngine
	log    logging.LeveledLogger

	mu     sync.Mutex // guards ctx and merger
	ctx    DecoderContext
	merge  bool
	merger *FrameMerger

	queue    *TaskQueue
	onDecode func(RawFrame)

	created time.Time
	now     func() time.Time
	closed  atomic.Bool

	decoded, stale, sendErrors atomic.Uint64
}

// NewDecoder opens a decoder for track. Candidate implementations are tried
// in priority order; the first one that opens wins.
func NewDecoder(track Track, opts DecoderOptions) (*Decoder, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry
	}
	preferred := opts.Preferred
	if preferred == nil {
		preferred = cfg.PreferredDecoders
	}
	threads := opts.Threads
	if threads == 0 {
		threads = cfg.DecoderThreads
	}
	maxTasks := opts.MaxTaskSize
	if maxTasks == 0 {
		maxTasks = cfg.MaxTaskSize
	}

	d := &Decoder{
		id:    uuid.New(),
		track: track,
		codec: track.Codec(),
		log:   newLogger(opts.LoggerFactory, "decoder"),
		now:   time.Now,
	}
	d.created = d.now()

	q, err := NewTaskQueue("decoder thread", maxTasks, opts.LoggerFactory)
	if err != nil {
		return nil, err
	}
	d.queue = q

	nvidia := false
	if isNvidiaCandidate(d.codec) {
		nvidia = NvidiaAvailable(cfg, opts.LoggerFactory)
	}
	engines := resolveEngines(d.codec, preferred, nvidia, reg.Decoder, reg.DefaultDecoder)
	if len(engines) == 0 {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrEngineNotFound, d.codec)
	}

	params := DecoderParams{
		Codec:     d.codec,
		ExtraData: track.ExtraData(),
		Threads:   threads,
	}
	if a, ok := track.(AudioInfo); ok {
		params.SampleRate = a.SampleRate()
		params.Channels = a.Channels()
	}
	if v, ok := track.(VideoInfo); ok {
		params.Width = v.Width()
		params.Height = v.Height()
		d.log.Infof("media source: %d X %d", params.Width, params.Height)
	}

	for i, e := range engines {
		ctx, err := e.Open(params)
		if err == nil {
			d.engine = e
			d.ctx = ctx
			break
		}
		if i < len(engines)-1 {
			d.log.Warnf("open decoder %s failed: %v, trying %s", e.Name(), err, engines[i+1].Name())
			continue
		}
		return nil, fmt.Errorf("%w: decoder %s: %v", ErrOpenFailed, e.Name(), err)
	}

	if d.codec == CodecH264 || d.codec == CodecH265 {
		d.merge = !d.ctx.Capabilities().Has(CapTruncated)
		d.merger = NewFrameMerger(d.codec)
	}
	d.log.Infof("[%s] open decoder %s success", d.id, d.engine.Name())
	return d, nil
}

func isNvidiaCandidate(codec CodecID) bool {
	return codec == CodecH264 || codec == CodecH265
}

// ID returns the session id.
func (d *Decoder) ID() string { return d.id.String() }

// Engine returns the name of the implementation in use.
func (d *Decoder) Engine() string { return d.engine.Name() }

// Track returns the source track.
func (d *Decoder) Track() Track { return d.track }

// SetOnDecode installs the callback receiving decoded frames. It must be
// set before the first Decode call.
func (d *Decoder) SetOnDecode(fn func(RawFrame)) {
	d.onDecode = fn
}

// Decode feeds one frame. With async set, video is decoded on the worker
// and the return value reports whether the work was queued. With live set,
// output lagging the input by more than three seconds is dropped once the
// decoder has been up for ten seconds. merge enables NAL merging for
// decoders that need whole access units.
func (d *Decoder) Decode(frame *Frame, live, async, merge bool) bool {
	if d.closed.Load() {
		return false
	}
	if async && !d.queue.Enabled() && d.codec.Kind() == KindVideo {
		d.queue.Start()
	}
	if !async || !d.queue.Enabled() {
		return d.input(frame, live, merge)
	}
	return d.queue.AddDecodeTask(frame.Key, func() {
		d.input(frame, live, merge)
	})
}

func (d *Decoder) input(frame *Frame, live, merge bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.merge && merge {
		err := d.merger.InputFrame(frame, func(dts, pts int64, au []byte, idr bool) {
			d.decodeFrame(au, dts, pts, live, idr)
		})
		if err != nil {
			d.sendErrors.Add(1)
			return false
		}
		return true
	}
	return d.decodeFrame(frame.Data, frame.DTS, frame.PTS, live, frame.Key)
}

func (d *Decoder) decodeFrame(data []byte, dts, pts int64, live, key bool) bool {
	err := d.ctx.SendPacket(&Packet{Data: data, DTS: dts, PTS: pts, Key: key})
	if err != nil {
		d.sendErrors.Add(1)
		if !errors.Is(err, ErrInvalidData) {
			d.log.Warnf("[%s] send packet failed: %v", d.id, err)
		}
		return false
	}

	for {
		raw, err := d.ctx.ReceiveFrame()
		if errors.Is(err, ErrNeedMoreInput) || errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			d.log.Warnf("[%s] receive frame failed: %v", d.id, err)
			break
		}
		if live && d.isStale(pts, raw.Timestamp()) {
			// Only later frames are dropped so the track can still become ready.
			d.stale.Add(1)
			d.log.Warnf("[%s] drop data older than %ds: %d %d", d.id, liveMaxDelayMs/1000, pts, raw.Timestamp())
			continue
		}
		d.emit(raw)
	}
	return true
}

func (d *Decoder) isStale(in, out int64) bool {
	if out == NoPTS {
		return false
	}
	return in-out > liveMaxDelayMs && d.now().Sub(d.created) > liveGracePeriodMs*time.Millisecond
}

func (d *Decoder) emit(raw RawFrame) {
	d.decoded.Add(1)
	if d.onDecode != nil {
		d.onDecode(raw)
	}
}

// Flush drains the decoder, delivering any buffered frames.
func (d *Decoder) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flush()
}

func (d *Decoder) flush() {
	draining := false
	for {
		raw, err := d.ctx.ReceiveFrame()
		if errors.Is(err, ErrNeedMoreInput) {
			if draining {
				return
			}
			draining = true
			if err := d.ctx.SendPacket(nil); err != nil {
				return
			}
			continue
		}
		if errors.Is(err, ErrEndOfStream) {
			return
		}
		if err != nil {
			d.log.Warnf("[%s] receive frame failed: %v", d.id, err)
			return
		}
		d.emit(raw)
	}
}

// Close stops the worker, dropping queued work, then drains and releases
// the codec context.
func (d *Decoder) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.queue.Stop(true)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.merge {
		d.merger.Flush()
	}
	d.flush()
	if err := d.ctx.Close(); err != nil {
		return fmt.Errorf("close decoder %s: %w", d.engine.Name(), err)
	}
	return nil
}

// Stats returns decoder statistics.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		ID:         d.id.String(),
		Engine:     d.engine.Name(),
		Decoded:    d.decoded.Load(),
		Stale:      d.stale.Load(),
		SendErrors: d.sendErrors.Load(),
		Queue:      d.queue.Stats(),
	}
}
