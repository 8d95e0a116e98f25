package transcode

import (
	"sort"
	"sync"
)

// Registry maps implementation names to codec engines.
type Registry struct {
	mu sync.RWMutex

	decoders map[string]DecoderEngine
	encoders map[string]EncoderEngine

	// Canonical implementation per codec
	decoderDefaults map[CodecID]string
	encoderDefaults map[CodecID]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders:        make(map[string]DecoderEngine),
		encoders:        make(map[string]EncoderEngine),
		decoderDefaults: make(map[CodecID]string),
		encoderDefaults: make(map[CodecID]string),
	}
}

// DefaultRegistry holds the engines compiled into this binary.
var DefaultRegistry = NewRegistry()

// RegisterDecoder adds a decoding engine. An engine carrying the codec's
// canonical name becomes its default; otherwise the first software engine
// registered for the codec does.
func (r *Registry) RegisterDecoder(e DecoderEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[e.Name()] = e
	if claimsDefault(e.Name(), e.Codec(), e.Hardware(), r.decoderDefaults) {
		r.decoderDefaults[e.Codec()] = e.Name()
	}
}

// RegisterEncoder adds an encoding engine, with the same default rule as
// RegisterDecoder.
func (r *Registry) RegisterEncoder(e EncoderEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[e.Name()] = e
	if claimsDefault(e.Name(), e.Codec(), e.Hardware(), r.encoderDefaults) {
		r.encoderDefaults[e.Codec()] = e.Name()
	}
}

func claimsDefault(name string, codec CodecID, hw bool, defaults map[CodecID]string) bool {
	if name == codec.defaultEngineName() {
		return true
	}
	if _, ok := defaults[codec]; ok {
		return false
	}
	return !hw
}

// Decoder looks up a decoding engine by name.
func (r *Registry) Decoder(name string) (DecoderEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.decoders[name]
	return e, ok
}

// Encoder looks up an encoding engine by name.
func (r *Registry) Encoder(name string) (EncoderEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[name]
	return e, ok
}

// DefaultDecoder returns the canonical decoding engine for codec.
func (r *Registry) DefaultDecoder(codec CodecID) (DecoderEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.decoders[r.decoderDefaults[codec]]
	return e, ok
}

// DefaultEncoder returns the canonical encoding engine for codec.
func (r *Registry) DefaultEncoder(codec CodecID) (EncoderEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[r.encoderDefaults[codec]]
	return e, ok
}

// Decoders lists registered decoder names in sorted order.
func (r *Registry) Decoders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decoders))
	for n := range r.decoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Encoders lists registered encoder names in sorted order.
func (r *Registry) Encoders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.encoders))
	for n := range r.encoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type candidateName struct {
	name   string
	nvidia bool // only when NVIDIA detection passes
}

// Priority lists, most specialised first. The canonical software name sits
// near the end; libopenh264 is the last H.264 resort.
var candidateNames = map[CodecID][]candidateName{
	CodecH264: {
		{"h264_nvmpi", false},
		{"h264_cuvid", true},
		{"h264_videotoolbox", false},
		{"h264_qsv", false},
		{"h264", false},
		{"libopenh264", false},
	},
	CodecH265: {
		{"hevc_nvmpi", false},
		{"hevc_cuvid", true},
		{"hevc_videotoolbox", false},
		{"hevc_qsv", false},
		{"hevc", false},
	},
}

// candidates returns the implementation names to try for codec.
func candidates(codec CodecID, nvidia bool) []string {
	list, ok := candidateNames[codec]
	if !ok {
		if name := codec.defaultEngineName(); name != "" {
			return []string{name}
		}
		return nil
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		if c.nvidia && !nvidia {
			continue
		}
		names = append(names, c.name)
	}
	return names
}

type namedEngine interface {
	Name() string
	Codec() CodecID
}

// resolveEngines builds the ordered open list for codec. A preferred name
// matching the codec short-circuits the priority list; the canonical
// default is always the final fallback.
func resolveEngines[E namedEngine](codec CodecID, preferred []string, nvidia bool,
	lookup func(string) (E, bool), fallback func(CodecID) (E, bool)) []E {

	var out []E
	seen := make(map[string]bool)
	add := func(e E) {
		if e.Codec() != codec || seen[e.Name()] {
			return
		}
		seen[e.Name()] = true
		out = append(out, e)
	}

	for _, name := range preferred {
		if e, ok := lookup(name); ok && e.Codec() == codec {
			add(e)
			break
		}
	}
	if len(out) == 0 {
		for _, name := range candidates(codec, nvidia) {
			if name == codec.defaultEngineName() {
				if e, ok := fallback(codec); ok {
					add(e)
				}
				continue
			}
			if e, ok := lookup(name); ok {
				add(e)
			}
		}
	}
	if e, ok := fallback(codec); ok {
		add(e)
	}
	return out
}

// CanDecode reports whether any decoding engine handles codec.
func (r *Registry) CanDecode(codec CodecID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.decoderDefaults[codec]; ok {
		return true
	}
	for _, e := range r.decoders {
		if e.Codec() == codec {
			return true
		}
	}
	return false
}
