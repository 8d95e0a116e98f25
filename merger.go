package transcode

import "fmt"

// MergeFunc receives one merged access unit.
type MergeFunc func(dts, pts int64, au []byte, haveIDR bool)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// FrameMerger joins Annex-B NAL units that share a DTS into a single access
// unit for decoders that require whole frames. It is not safe for
// concurrent use.
type FrameMerger struct {
	codec CodecID

	buf     []byte
	dts     int64
	pts     int64
	haveIDR bool
	pending bool
	cb      MergeFunc
}

// NewFrameMerger creates a merger for H.264 or H.265 frames.
func NewFrameMerger(codec CodecID) *FrameMerger {
	return &FrameMerger{codec: codec}
}

// InputFrame adds frame to the pending unit. A frame carrying a new DTS
// first flushes the pending unit to cb. Empty frames and frames whose
// prefix overruns the data are rejected with ErrInvalidData.
func (m *FrameMerger) InputFrame(frame *Frame, cb MergeFunc) error {
	m.cb = cb
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: empty frame", ErrInvalidData)
	}
	if frame.Prefix < 0 || frame.Prefix > len(frame.Data) {
		return fmt.Errorf("%w: prefix %d for %d bytes", ErrInvalidData, frame.Prefix, len(frame.Data))
	}
	if m.pending && frame.DTS != m.dts {
		m.Flush()
	}
	if !m.pending {
		m.pending = true
		m.dts = frame.DTS
		m.pts = frame.PTS
		m.haveIDR = false
	}
	if frame.Prefix == 0 && startCodeLen(frame.Data) == 0 {
		m.buf = append(m.buf, annexBStartCode...)
	}
	m.buf = append(m.buf, frame.Data...)
	if frame.Key || isRandomAccess(m.codec, frame.Data[frame.Prefix:]) {
		m.haveIDR = true
	}
	return nil
}

// Flush emits the pending unit, if any.
func (m *FrameMerger) Flush() {
	if !m.pending {
		return
	}
	au := m.buf
	m.buf = nil
	m.pending = false
	if m.cb != nil {
		m.cb(m.dts, m.pts, au, m.haveIDR)
	}
}

// startCodeLen returns the length of the Annex-B start code at the head of
// b, or 0 if there is none.
func startCodeLen(b []byte) int {
	switch {
	case len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1:
		return 4
	case len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1:
		return 3
	}
	return 0
}

// isRandomAccess reports whether the NAL unit at the head of nal is an
// H.264 IDR slice or an H.265 IRAP picture.
func isRandomAccess(codec CodecID, nal []byte) bool {
	if n := startCodeLen(nal); n > 0 {
		nal = nal[n:]
	}
	if len(nal) == 0 {
		return false
	}
	switch codec {
	case CodecH264:
		return nal[0]&0x1F == 5
	case CodecH265:
		t := (nal[0] >> 1) & 0x3F
		return t >= 16 && t <= 21
	}
	return false
}
