//go:build darwin || linux

package transcode

// videoEncoder holds the packet queue shared by the library-backed video
// encoders. Libraries may buffer input, so input timestamps are queued and
// paired with packets in order; none of them emit B-frames.
type videoEncoder struct {
	params   EncoderParams
	pending  []int64
	out      []*Packet
	frames   int
	draining bool
}

// forceKey requests a key frame on the first frame and every GOPSize after.
func (c *videoEncoder) forceKey() int32 {
	n := c.frames
	c.frames++
	if n == 0 || (c.params.GOPSize > 0 && n%c.params.GOPSize == 0) {
		return 1
	}
	return 0
}

func (c *videoEncoder) emit(data []byte, key bool) {
	pts := NoPTS
	if len(c.pending) > 0 {
		pts = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.out = append(c.out, &Packet{
		Data: append([]byte(nil), data...),
		PTS:  pts,
		DTS:  pts,
		Key:  key,
	})
}

func (c *videoEncoder) ReceivePacket() (*Packet, error) {
	if len(c.out) > 0 {
		p := c.out[0]
		c.out = c.out[1:]
		return p, nil
	}
	if c.draining {
		return nil, ErrEndOfStream
	}
	return nil, ErrNeedMoreInput
}

func (c *videoEncoder) Params() EncoderParams      { return c.params }
func (c *videoEncoder) Capabilities() Capabilities { return CapLowDelay }

type videoDecoder struct {
	out      []*VideoFrame
	draining bool
}

func (d *videoDecoder) ReceiveFrame() (RawFrame, error) {
	if len(d.out) > 0 {
		f := d.out[0]
		d.out = d.out[1:]
		return f, nil
	}
	if d.draining {
		return nil, ErrEndOfStream
	}
	return nil, ErrNeedMoreInput
}

func (d *videoDecoder) Capabilities() Capabilities { return CapLowDelay }
