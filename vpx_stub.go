//go:build !(darwin || linux) || novpx

package transcode

// IsVPXAvailable reports false: this build carries no libvpx engine.
func IsVPXAvailable(CodecID) bool { return false }
