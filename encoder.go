package transcode

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// EncoderOptions configures NewEncoder. Zero values fall back to Config.
type EncoderOptions struct {
	// Preferred lists implementation names tried before the priority list.
	Preferred []string

	Threads     int
	MaxTaskSize int

	// Rescale converts mismatched video to the opened size instead of
	// reopening the encoder at the new size.
	Rescale bool

	Registry      *Registry // defaults to DefaultRegistry
	LoggerFactory logging.LoggerFactory
	Config        *Config // defaults to DefaultConfig()
}

// EncoderStats contains encoder statistics.
type EncoderStats struct {
	ID         string
	Engine     string
	Encoded    uint64 // units delivered to the callback
	SendErrors uint64
	Reopens    uint64
	Buffered   int // samples waiting in the audio fifo
	Queue      TaskQueueStats
}

// Encoder turns raw frames into compressed frames of one target track.
//
// Audio is resampled to the parameters the engine negotiated and, for
// engines that demand a fixed frame size, repacked through an AudioFifo.
type Encoder struct {
	id     uuid.UUID
	track  Track
	codec  CodecID
	engine EncoderEngine
	lf     logging.LoggerFactory
	log    logging.LeveledLogger

	mu           sync.Mutex // guards everything below up to queue
	ctx          EncoderContext
	params       EncoderParams
	base         EncoderParams // parameters requested at open
	varFrameSize bool
	swr          *Resampler
	fifo         *AudioFifo
	sws          *Rescaler
	cvt          *Rescaler // pixel format only, used after a reopen

	queue    *TaskQueue
	onEncode func(*Frame)
	closed   atomic.Bool

	encoded, sendErrors, reopens atomic.Uint64
}

// NewEncoder opens an encoder producing track. Candidates are tried in
// priority order, as for NewDecoder.
func NewEncoder(track Track, opts EncoderOptions) (*Encoder, error) {
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
		preferred = cfg.PreferredEncoders
	}
	threads := opts.Threads
	if threads == 0 {
		threads = cfg.EncoderThreads
	}
	maxTasks := opts.MaxTaskSize
	if maxTasks == 0 {
		maxTasks = cfg.MaxTaskSize
	}

	e := &Encoder{
		id:    uuid.New(),
		track: track,
		codec: track.Codec(),
		lf:    opts.LoggerFactory,
		log:   newLogger(opts.LoggerFactory, "encoder"),
	}
	q, err := NewTaskQueue("encoder thread", maxTasks, opts.LoggerFactory)
	if err != nil {
		return nil, err
	}
	e.queue = q

	// Only H.264 and H.265 let a preferred name bypass the priority list.
	if !isNvidiaCandidate(e.codec) {
		preferred = nil
	}
	nvidia := false
	if isNvidiaCandidate(e.codec) {
		nvidia = NvidiaAvailable(cfg, opts.LoggerFactory)
	}
	engines := resolveEngines(e.codec, preferred, nvidia, reg.Encoder, reg.DefaultEncoder)
	if len(engines) == 0 {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrEngineNotFound, e.codec)
	}

	e.base = EncoderParams{
		Codec:            e.codec,
		BitRate:          track.Bitrate(),
		TimeBase:         1000,
		CompressionLevel: -1,
		Threads:          threads,
		Options:          map[string]string{"zerolatency": "1"},
	}
	if v, ok := track.(VideoInfo); ok {
		e.base.Width = v.Width()
		e.base.Height = v.Height()
		e.base.GOPSize = videoGOPSize
		e.base.MaxBFrames = 0
		e.base.PixelFormat = PixelFormatI420
	}
	if a, ok := track.(AudioInfo); ok {
		e.base.SampleRate = a.SampleRate()
		e.base.Channels = a.Channels()
		if e.codec == CodecOpus {
			e.base.CompressionLevel = 1
		}
	}

	for i, eng := range engines {
		err := e.open(eng, e.base)
		if err == nil {
			break
		}
		if i < len(engines)-1 {
			e.log.Warnf("open encoder %s failed: %v, trying %s", eng.Name(), err, engines[i+1].Name())
			continue
		}
		return nil, fmt.Errorf("%w: encoder %s: %v", ErrOpenFailed, eng.Name(), err)
	}

	if e.codec.Kind() == KindAudio {
		e.varFrameSize = e.ctx.Capabilities().Has(CapVariableFrameSize)
		if e.varFrameSize {
			e.log.Infof("%s support var frame_size", e.engine.Name())
		}
		e.swr = NewResampler(e.params.SampleFormat, e.params.Channels, e.params.SampleRate, opts.LoggerFactory)
		e.fifo = NewAudioFifo(opts.LoggerFactory)
	} else if opts.Rescale {
		e.sws, err = NewRescaler(e.params.PixelFormat, e.params.Width, e.params.Height, ScaleModeStretch, opts.LoggerFactory)
		if err != nil {
			e.ctx.Close()
			return nil, err
		}
	}
	e.log.Infof("[%s] open encoder %s success, frame size %d", e.id, e.engine.Name(), e.params.FrameSize)
	return e, nil
}

func (e *Encoder) open(eng EncoderEngine, p EncoderParams) error {
	if e.codec.Kind() == KindAudio {
		p.SampleFormat = SampleFormatS16
		if formats := eng.SampleFormats(); len(formats) > 0 {
			p.SampleFormat = formats[0]
		}
		e.log.Infof("open audio codec %s %dx%d", eng.Name(), p.SampleRate, p.Channels)
	} else {
		e.log.Infof("open video codec %s %dx%d", eng.Name(), p.Width, p.Height)
	}
	ctx, err := eng.Open(p)
	if err != nil {
		return err
	}
	e.engine = eng
	e.ctx = ctx
	e.params = ctx.Params()
	return nil
}

// reopen replaces the video context with one sized width x height.
func (e *Encoder) reopen(width, height int) error {
	if err := e.ctx.Close(); err != nil {
		e.log.Warnf("[%s] close encoder before reopen: %v", e.id, err)
	}
	p := e.base
	p.Width = width
	p.Height = height
	p.BitRate = reopenBitrate
	if err := e.open(e.engine, p); err != nil {
		e.ctx = nil
		return err
	}
	e.reopens.Add(1)
	return nil
}

// ID returns the session id.
func (e *Encoder) ID() string { return e.id.String() }

// Engine returns the name of the implementation in use.
func (e *Encoder) Engine() string { return e.engine.Name() }

// Track returns the target track.
func (e *Encoder) Track() Track { return e.track }

// Params returns the negotiated encoder parameters.
func (e *Encoder) Params() EncoderParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetOnEncode installs the callback receiving encoded frames. It must be
// set before the first Encode call.
func (e *Encoder) SetOnEncode(fn func(*Frame)) {
	e.onEncode = fn
}

// Encode feeds one raw frame. With async set, video is encoded on the
// worker; when the worker falls behind the oldest queued frame is dropped.
// The caller must not modify raw after an async call.
func (e *Encoder) Encode(raw RawFrame, async bool) bool {
	if e.closed.Load() {
		return false
	}
	if async && !e.queue.Enabled() && e.codec.Kind() == KindVideo {
		e.queue.Start()
	}
	if !async || !e.queue.Enabled() {
		return e.input(raw)
	}
	return e.queue.AddEncodeTask(func() {
		e.input(raw)
	})
}

func (e *Encoder) input(raw RawFrame) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return false
	}
	switch f := raw.(type) {
	case *AudioFrame:
		if e.codec.Kind() != KindAudio {
			break
		}
		return e.inputAudio(f)
	case *VideoFrame:
		if e.codec.Kind() != KindVideo {
			break
		}
		return e.inputVideo(f)
	}
	e.log.Warnf("[%s] %s encoder got %s frame", e.id, e.codec, raw.Kind())
	return false
}

func (e *Encoder) inputAudio(in *AudioFrame) bool {
	frame, err := e.swr.Convert(in)
	if err != nil {
		e.log.Warnf("[%s] resample: %v", e.id, err)
		return false
	}
	if frame != in {
		defer e.swr.Release(frame)
	}

	// Make sure every frame handed to the engine has the size it demands.
	n := e.params.FrameSize
	if !e.varFrameSize && n > 0 && (frame.Samples != n || e.fifo.Size() > 0) {
		if err := e.fifo.Write(frame); err != nil {
			e.log.Warnf("[%s] fifo: %v", e.id, err)
			return false
		}
		for {
			chunk, ok := e.fifo.Read(n)
			if !ok {
				break
			}
			if !e.encodeFrame(chunk) {
				break
			}
		}
		return true
	}
	return e.encodeFrame(frame)
}

func (e *Encoder) inputVideo(frame *VideoFrame) bool {
	p := e.params
	if frame.Format != p.PixelFormat || frame.Width != p.Width || frame.Height != p.Height {
		if e.sws != nil {
			out, err := e.sws.Convert(frame)
			if err != nil {
				e.log.Warnf("[%s] rescale: %v", e.id, err)
				return false
			}
			if out != frame {
				defer e.sws.Release(out)
			}
			frame = out
		} else {
			if frame.Width != p.Width || frame.Height != p.Height {
				e.log.Infof("[%s] input size %dx%d differs from %dx%d, reopen encoder",
					e.id, frame.Width, frame.Height, p.Width, p.Height)
				if err := e.reopen(frame.Width, frame.Height); err != nil {
					e.log.Warnf("[%s] reopen encoder %s: %v", e.id, e.engine.Name(), err)
					return false
				}
			}
			if frame.Format != e.params.PixelFormat {
				if e.cvt == nil {
					e.cvt, _ = NewRescaler(e.params.PixelFormat, 0, 0, ScaleModeStretch, e.lf)
				}
				if e.cvt == nil {
					return false
				}
				out, err := e.cvt.Convert(frame)
				if err != nil {
					e.log.Warnf("[%s] convert %s: %v", e.id, frame.Format, err)
					return false
				}
				defer e.cvt.Release(out)
				frame = out
			}
		}
	}
	return e.encodeFrame(frame)
}

func (e *Encoder) encodeFrame(frame RawFrame) bool {
	if err := e.ctx.SendFrame(frame); err != nil {
		e.sendErrors.Add(1)
		e.log.Warnf("[%s] send frame %d to the encoder failed: %v", e.id, frame.Timestamp(), err)
		return false
	}
	for {
		pkt, err := e.ctx.ReceivePacket()
		if errors.Is(err, ErrNeedMoreInput) || errors.Is(err, ErrEndOfStream) {
			return true
		}
		if err != nil {
			e.log.Warnf("[%s] encode frame failed: %v", e.id, err)
			return false
		}
		e.emit(pkt)
	}
}

func (e *Encoder) emit(pkt *Packet) {
	e.encoded.Add(1)
	if e.onEncode == nil {
		return
	}
	if e.codec == CodecAAC {
		e.onEncode(e.aacFrame(pkt))
		return
	}
	f := &Frame{
		Codec: e.codec,
		DTS:   pkt.DTS,
		PTS:   pkt.PTS,
		Data:  pkt.Data,
		Key:   pkt.Key || e.codec.Kind() == KindAudio,
	}
	if e.codec == CodecH264 || e.codec == CodecH265 {
		f.Prefix = startCodeLen(pkt.Data)
	}
	e.onEncode(f)
}

// aacFrame wraps a raw AAC unit in an ADTS header built from the encoder's
// AudioSpecificConfig. DefaultRegistry has no AAC engine, so this only runs
// when the caller registers one.
func (e *Encoder) aacFrame(pkt *Packet) *Frame {
	f := &Frame{Codec: CodecAAC, DTS: pkt.DTS, PTS: pkt.PTS, Key: true}
	buf := make([]byte, 0, ADTSHeaderSize+len(pkt.Data))
	if cfg := e.params.ExtraData; len(cfg) > 0 {
		var hdr [ADTSHeaderSize]byte
		if _, err := MakeADTSHeader(cfg, len(pkt.Data), hdr[:]); err != nil {
			e.log.Warnf("[%s] adts header: %v", e.id, err)
		} else {
			buf = append(buf, hdr[:]...)
			f.Prefix = ADTSHeaderSize
		}
	}
	f.Data = append(buf, pkt.Data...)
	return f
}

// Flush drains the encoder, delivering any buffered units.
func (e *Encoder) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flush()
}

func (e *Encoder) flush() {
	if e.ctx == nil {
		return
	}
	draining := false
	for {
		pkt, err := e.ctx.ReceivePacket()
		if errors.Is(err, ErrNeedMoreInput) {
			if draining {
				return
			}
			draining = true
			if err := e.ctx.SendFrame(nil); err != nil {
				return
			}
			continue
		}
		if errors.Is(err, ErrEndOfStream) {
			return
		}
		if err != nil {
			e.log.Warnf("[%s] receive packet failed: %v", e.id, err)
			return
		}
		e.emit(pkt)
	}
}

// Close stops the worker, dropping queued work, then drains and releases
// the codec context.
func (e *Encoder) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.queue.Stop(true)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.flush()
	if e.ctx == nil {
		return nil
	}
	if err := e.ctx.Close(); err != nil {
		return fmt.Errorf("close encoder %s: %w", e.engine.Name(), err)
	}
	return nil
}

// Stats returns encoder statistics.
func (e *Encoder) Stats() EncoderStats {
	s := EncoderStats{
		ID:         e.id.String(),
		Engine:     e.engine.Name(),
		Encoded:    e.encoded.Load(),
		SendErrors: e.sendErrors.Load(),
		Reopens:    e.reopens.Load(),
		Queue:      e.queue.Stats(),
	}
	e.mu.Lock()
	if e.fifo != nil {
		s.Buffered = e.fifo.Size()
	}
	e.mu.Unlock()
	return s
}
