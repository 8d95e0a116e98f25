//go:build !(darwin || linux) || noopus

package transcode

// IsOpusAvailable reports false: this build carries no Opus engine.
func IsOpusAvailable() bool { return false }

// OpusVersion returns an empty string in builds without Opus.
func OpusVersion() string { return "" }
