//go:build !(darwin || linux) || noh264

package transcode

// IsH264EncoderAvailable reports false: this build carries no x264 engine.
func IsH264EncoderAvailable() bool { return false }

// IsH264DecoderAvailable reports false: this build carries no OpenH264 engine.
func IsH264DecoderAvailable() bool { return false }
