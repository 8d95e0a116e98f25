package transcode

import "errors"

var (
	// ErrInvalidConfig is returned for out-of-range knobs and malformed
	// codec configuration such as short AAC extradata.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEngineNotFound means no implementation is registered for a codec.
	ErrEngineNotFound = errors.New("codec engine not found")

	// ErrOpenFailed means every candidate implementation failed to open.
	ErrOpenFailed = errors.New("codec engine open failed")

	// ErrInvalidData is reported by engines for malformed input. It is
	// skipped silently by the decoder.
	ErrInvalidData = errors.New("invalid data")

	// ErrNeedMoreInput is returned by Receive* when the engine wants input.
	ErrNeedMoreInput = errors.New("need more input")

	// ErrEndOfStream is returned by Receive* once a drain has completed.
	ErrEndOfStream = errors.New("end of stream")

	// ErrCodecMismatch is returned when a converter is given the wrong track.
	ErrCodecMismatch = errors.New("codec mismatch")

	// ErrClosed is returned by operations on a closed component.
	ErrClosed = errors.New("closed")
)
