package transcode

import "sync"

// Sink is the downstream of a Controller: a muxer or media source that
// receives tracks and frames and keeps a replay cache for new readers.
type Sink interface {
	FrameWriter
	AddTrack(track Track) bool
	ResetTracks()
	ClearCache()
}

// MultiSink fans tracks and frames out to several sinks. It reports
// success if any sink does.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMultiSink creates a fan-out over sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add appends a sink.
func (m *MultiSink) Add(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

// Remove detaches s and reports whether it was attached.
func (m *MultiSink) Remove(s Sink) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.sinks {
		if cur == s {
			m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of attached sinks.
func (m *MultiSink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

func (m *MultiSink) snapshot() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sink(nil), m.sinks...)
}

func (m *MultiSink) InputFrame(frame *Frame) bool {
	ret := false
	for _, s := range m.snapshot() {
		if s.InputFrame(frame) {
			ret = true
		}
	}
	return ret
}

func (m *MultiSink) AddTrack(track Track) bool {
	ret := false
	for _, s := range m.snapshot() {
		if s.AddTrack(track) {
			ret = true
		}
	}
	return ret
}

func (m *MultiSink) ResetTracks() {
	for _, s := range m.snapshot() {
		s.ResetTracks()
	}
}

func (m *MultiSink) ClearCache() {
	for _, s := range m.snapshot() {
		s.ClearCache()
	}
}
