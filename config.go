package transcode

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Queue size bounds accepted by TaskQueue.
const (
	MinTaskSize        = 3
	MaxTaskSize        = 1000
	DefaultMaxTaskSize = 30
)

// Fixed pipeline constants.
const (
	liveMaxDelayMs     = 3000  // decoded output older than this is dropped in live mode
	liveGracePeriodMs  = 10000 // no staleness drops during the first 10s
	fifoRebaseMs       = 200   // timestamp jitter tolerated by AudioFifo
	aacSamplesPerFrame = 1024
	videoGOPSize       = 200
	reopenBitrate      = 512000
	defaultOpusBitrate = 64000
)

// Config holds the tunable knobs of a transcode session.
type Config struct {
	// MaxTaskSize bounds each worker queue; must be within [3, 1000].
	MaxTaskSize int `yaml:"max_task_size"`

	// CheckNvidiaDev enables the one-time NVIDIA capability check that
	// unlocks *_cuvid implementations.
	CheckNvidiaDev bool `yaml:"check_nvidia_dev"`

	// AACBitrate is the AAC encoder target; 0 means sample_rate*channels.
	AACBitrate int `yaml:"aac_bitrate"`

	// OpusBitrate is the Opus encoder target.
	OpusBitrate int `yaml:"opus_bitrate"`

	// Demand suppresses output while nobody is reading.
	Demand bool `yaml:"demand"`

	// AudioTranscode enables audio conversion toward the target codec.
	AudioTranscode bool `yaml:"audio_transcode"`

	// TranscodeAAC makes AAC sources eligible for conversion to Opus.
	// RTSP-style legs enable it, RTMP-style legs carry AAC natively.
	TranscodeAAC bool `yaml:"transcode_aac"`

	DecoderThreads int `yaml:"decoder_threads"`
	EncoderThreads int `yaml:"encoder_threads"`

	PreferredDecoders []string `yaml:"preferred_decoders"`
	PreferredEncoders []string `yaml:"preferred_encoders"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTaskSize:    DefaultMaxTaskSize,
		CheckNvidiaDev: true,
		OpusBitrate:    defaultOpusBitrate,
		AudioTranscode: true,
		TranscodeAAC:   true,
	}
}

// Validate checks the knobs that are rejected at construction time.
func (c Config) Validate() error {
	if err := validateTaskSize(c.MaxTaskSize); err != nil {
		return err
	}
	if c.AACBitrate < 0 {
		return fmt.Errorf("%w: aac_bitrate %d", ErrInvalidConfig, c.AACBitrate)
	}
	if c.OpusBitrate < 0 {
		return fmt.Errorf("%w: opus_bitrate %d", ErrInvalidConfig, c.OpusBitrate)
	}
	if c.DecoderThreads < 0 || c.EncoderThreads < 0 {
		return fmt.Errorf("%w: negative thread count", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateTaskSize(n int) error {
	if n < MinTaskSize || n > MaxTaskSize {
		return fmt.Errorf("%w: max task size %d outside [%d, %d]", ErrInvalidConfig, n, MinTaskSize, MaxTaskSize)
	}
	return nil
}
