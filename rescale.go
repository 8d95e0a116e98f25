package transcode

import (
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeFit shrinks the target box to the source aspect ratio. The
	// output can be smaller than the configured size.
	ScaleModeFit
)

// Rescaler converts video frames to a fixed pixel format and size. A zero
// target width or height keeps the source dimension. Output is I420.
type Rescaler struct {
	format PixelFormat
	width  int
	height int
	mode   ScaleMode

	ctx  *swsContext
	pool *videoPool
	log  logging.LeveledLogger
}

// swsContext holds conversion state for one source shape.
type swsContext struct {
	srcFormat PixelFormat
	srcW      int
	srcH      int
	dstW      int
	dstH      int
	planar    *VideoFrame // I420 staging for packed or semi-planar sources
}

// NewRescaler creates a rescaler. Only PixelFormatI420 is supported as a
// conversion target.
func NewRescaler(format PixelFormat, width, height int, mode ScaleMode, lf logging.LoggerFactory) (*Rescaler, error) {
	if format != PixelFormatI420 {
		return nil, fmt.Errorf("%w: rescale target %s", ErrInvalidConfig, format)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: rescale target %dx%d", ErrInvalidConfig, width, height)
	}
	return &Rescaler{
		format: format,
		width:  width,
		height: height,
		mode:   mode,
		pool:   &videoPool{max: 4},
		log:    newLogger(lf, "rescale"),
	}, nil
}

// Convert returns frame converted to the target. The input is returned
// unchanged when format and size already match.
func (r *Rescaler) Convert(frame *VideoFrame) (*VideoFrame, error) {
	dstW, dstH := r.width, r.height
	if dstW == 0 {
		dstW = frame.Width
	}
	if dstH == 0 {
		dstH = frame.Height
	}
	if r.mode == ScaleModeFit && frame.Width > 0 && frame.Height > 0 {
		dstW, dstH = FitSize(frame.Width, frame.Height, dstW, dstH, r.mode)
	}
	if frame.Format == r.format && frame.Width == dstW && frame.Height == dstH {
		return frame, nil
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("%w: video frame %dx%d", ErrInvalidData, frame.Width, frame.Height)
	}

	if c := r.ctx; c == nil || c.srcFormat != frame.Format || c.srcW != frame.Width || c.srcH != frame.Height ||
		c.dstW != dstW || c.dstH != dstH {
		r.ctx = &swsContext{
			srcFormat: frame.Format,
			srcW:      frame.Width,
			srcH:      frame.Height,
			dstW:      dstW,
			dstH:      dstH,
		}
		r.log.Infof("sws %s %dx%d -> %s %dx%d", frame.Format, frame.Width, frame.Height, r.format, dstW, dstH)
	}
	c := r.ctx

	src := frame
	switch frame.Format {
	case PixelFormatI420:
	case PixelFormatNV12, PixelFormatRGBA:
		if c.planar == nil {
			c.planar = NewI420Frame(frame.Width, frame.Height)
		}
		if frame.Format == PixelFormatNV12 {
			nv12ToI420(frame, c.planar)
		} else {
			rgbaToI420(frame, c.planar)
		}
		src = c.planar
	default:
		return nil, fmt.Errorf("%w: pixel format %s", ErrInvalidData, frame.Format)
	}

	out := r.pool.get(dstW, dstH)
	out.PTS = frame.PTS
	if src.Width == dstW && src.Height == dstH {
		for i := 0; i < 3; i++ {
			copyPlane(src.Data[i], src.Stride[i], out.Data[i], out.Stride[i], out.Stride[i], planeRows(i, dstH))
		}
		return out, nil
	}

	srcX, srcY, srcW, srcH := r.sourceRegion(src.Width, src.Height, dstW, dstH)
	scalePlane(src.Data[0], src.Stride[0], srcX, srcY, srcW, srcH,
		out.Data[0], out.Stride[0], dstW, dstH)
	cw, ch := (dstW+1)/2, (dstH+1)/2
	for i := 1; i < 3; i++ {
		scalePlane(src.Data[i], src.Stride[i], srcX/2, srcY/2, (srcW+1)/2, (srcH+1)/2,
			out.Data[i], out.Stride[i], cw, ch)
	}
	return out, nil
}

// Release hands a converted frame back to the pool.
func (r *Rescaler) Release(frame *VideoFrame) {
	r.pool.put(frame)
}

// sourceRegion determines what region of the source to use based on scale mode.
func (r *Rescaler) sourceRegion(srcW, srcH, dstW, dstH int) (x, y, w, h int) {
	if r.mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	if srcAspect > dstAspect {
		// Source is wider, crop horizontally
		newW := int(float64(srcH) * dstAspect)
		return ((srcW - newW) / 2) &^ 1, 0, newW, srcH
	} else if srcAspect < dstAspect {
		// Source is taller, crop vertically
		newH := int(float64(srcW) / dstAspect)
		return 0, ((srcH - newH) / 2) &^ 1, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// FitSize returns the output dimensions used when scaling srcW x srcH into
// a maxW x maxH box with the given mode. Only ScaleModeFit changes the box.
func FitSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode != ScaleModeFit || srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	srcAspect := float64(srcW) / float64(srcH)
	if srcAspect > float64(maxW)/float64(maxH) {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	// Even dimensions for 4:2:0
	return (w + 1) &^ 1, (h + 1) &^ 1
}

func planeRows(plane, height int) int {
	if plane == 0 {
		return height
	}
	return (height + 1) / 2
}

func copyPlane(src []byte, srcStride int, dst []byte, dstStride, width, rows int) {
	for y := 0; y < rows; y++ {
		copy(dst[y*dstStride:y*dstStride+width], src[y*srcStride:])
	}
}

// scalePlane scales a single plane using bilinear interpolation.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := srcYFP>>16 + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		yWeight := srcYFP & 0xFFFF

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := srcXFP>>16 + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}
			xWeight := srcXFP & 0xFFFF

			p00 := int(src[y0*srcStride+x0])
			p10 := int(src[y0*srcStride+x1])
			p01 := int(src[y1*srcStride+x0])
			p11 := int(src[y1*srcStride+x1])

			top := (p00*(0x10000-xWeight) + p10*xWeight) >> 16
			bottom := (p01*(0x10000-xWeight) + p11*xWeight) >> 16
			dst[y*dstStride+x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

func nv12ToI420(src, dst *VideoFrame) {
	copyPlane(src.Data[0], src.Stride[0], dst.Data[0], dst.Stride[0], src.Width, src.Height)
	cw, ch := (src.Width+1)/2, (src.Height+1)/2
	uv := src.Data[1]
	for y := 0; y < ch; y++ {
		row := uv[y*src.Stride[1]:]
		for x := 0; x < cw; x++ {
			dst.Data[1][y*dst.Stride[1]+x] = row[2*x]
			dst.Data[2][y*dst.Stride[2]+x] = row[2*x+1]
		}
	}
}

// rgbaToI420 uses BT.601 limited-range coefficients; chroma is taken from
// the top-left pixel of each 2x2 block.
func rgbaToI420(src, dst *VideoFrame) {
	px := src.Data[0]
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			o := y*src.Stride[0] + x*4
			r, g, b := int(px[o]), int(px[o+1]), int(px[o+2])
			dst.Data[0][y*dst.Stride[0]+x] = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
			if y%2 == 0 && x%2 == 0 {
				dst.Data[1][(y/2)*dst.Stride[1]+x/2] = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
				dst.Data[2][(y/2)*dst.Stride[2]+x/2] = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
			}
		}
	}
}

// videoPool is a small bounded free list of I420 frames.
type videoPool struct {
	mu   sync.Mutex
	free []*VideoFrame
	max  int
}

func (p *videoPool) get(width, height int) *VideoFrame {
	p.mu.Lock()
	for i := len(p.free) - 1; i >= 0; i-- {
		f := p.free[i]
		if f.Width == width && f.Height == height {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.mu.Unlock()
			return f
		}
	}
	p.mu.Unlock()
	return NewI420Frame(width, height)
}

func (p *videoPool) put(f *VideoFrame) {
	if f == nil || f.Format != PixelFormatI420 {
		return
	}
	p.mu.Lock()
	if len(p.free) < p.max {
		p.free = append(p.free, f)
	}
	p.mu.Unlock()
}
