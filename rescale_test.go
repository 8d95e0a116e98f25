package transcode

import "testing"

func TestRescaler_PassThrough(t *testing.T) {
	r, err := NewRescaler(PixelFormatI420, 0, 0, ScaleModeStretch, nil)
	if err != nil {
		t.Fatalf("NewRescaler: %v", err)
	}
	frame := createGradientFrame(640, 480)
	out, err := r.Convert(frame)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out != frame {
		t.Error("Expected same frame when no conversion needed")
	}
}

func TestRescaler_Downscale(t *testing.T) {
	r, _ := NewRescaler(PixelFormatI420, 640, 360, ScaleModeStretch, nil)
	frame := createGradientFrame(1280, 720)
	frame.PTS = 40

	out, err := r.Convert(frame)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Width != 640 || out.Height != 360 {
		t.Errorf("Expected 640x360, got %dx%d", out.Width, out.Height)
	}
	if out.PTS != 40 {
		t.Errorf("PTS = %d, want 40", out.PTS)
	}
	if len(out.Data[0]) != 640*360 {
		t.Errorf("Y plane size = %d, want %d", len(out.Data[0]), 640*360)
	}
	// Horizontal gradient survives: left edge dark, right edge bright.
	if out.Data[0][0] > 10 || out.Data[0][639] < 240 {
		t.Errorf("gradient lost: left=%d right=%d", out.Data[0][0], out.Data[0][639])
	}
}

func TestRescaler_Upscale(t *testing.T) {
	r, _ := NewRescaler(PixelFormatI420, 1280, 720, ScaleModeStretch, nil)
	out, err := r.Convert(createGradientFrame(320, 240))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Width != 1280 || out.Height != 720 {
		t.Errorf("Expected 1280x720, got %dx%d", out.Width, out.Height)
	}
}

func TestRescaler_Fill(t *testing.T) {
	r, _ := NewRescaler(PixelFormatI420, 640, 480, ScaleModeFill, nil)
	out, err := r.Convert(createGradientFrame(1920, 1080))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Width != 640 || out.Height != 480 {
		t.Errorf("Expected 640x480, got %dx%d", out.Width, out.Height)
	}
	// Cropped horizontally, so the left edge is no longer black.
	if out.Data[0][0] < 20 {
		t.Errorf("expected horizontal crop, left pixel = %d", out.Data[0][0])
	}
}

func TestRescaler_Fit(t *testing.T) {
	r, _ := NewRescaler(PixelFormatI420, 640, 480, ScaleModeFit, nil)
	out, err := r.Convert(createGradientFrame(1920, 1080))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Width != 640 || out.Height != 360 {
		t.Errorf("Expected 640x360, got %dx%d", out.Width, out.Height)
	}
}

func TestRescaler_NV12(t *testing.T) {
	const w, h = 64, 32
	nv12 := &VideoFrame{
		Data:   [][]byte{make([]byte, w*h), make([]byte, w*h/2)},
		Stride: []int{w, w},
		Width:  w,
		Height: h,
		Format: PixelFormatNV12,
	}
	for i := range nv12.Data[0] {
		nv12.Data[0][i] = 77
	}
	for i := 0; i < len(nv12.Data[1]); i += 2 {
		nv12.Data[1][i] = 10
		nv12.Data[1][i+1] = 200
	}

	r, _ := NewRescaler(PixelFormatI420, 0, 0, ScaleModeStretch, nil)
	out, err := r.Convert(nv12)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Format != PixelFormatI420 || out.Width != w || out.Height != h {
		t.Fatalf("got %s %dx%d", out.Format, out.Width, out.Height)
	}
	if out.Data[0][5] != 77 || out.Data[1][3] != 10 || out.Data[2][3] != 200 {
		t.Errorf("planes = %d/%d/%d, want 77/10/200", out.Data[0][5], out.Data[1][3], out.Data[2][3])
	}
}

func TestRescaler_RGBA(t *testing.T) {
	const w, h = 8, 8
	rgba := &VideoFrame{
		Data:   [][]byte{make([]byte, w*h*4)},
		Stride: []int{w * 4},
		Width:  w,
		Height: h,
		Format: PixelFormatRGBA,
	}
	for i := 0; i < len(rgba.Data[0]); i += 4 {
		rgba.Data[0][i+0] = 255
		rgba.Data[0][i+1] = 255
		rgba.Data[0][i+2] = 255
		rgba.Data[0][i+3] = 255
	}

	r, _ := NewRescaler(PixelFormatI420, 4, 4, ScaleModeStretch, nil)
	out, err := r.Convert(rgba)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	// White is Y=235 in limited range with neutral chroma.
	if y := out.Data[0][0]; y < 234 || y > 236 {
		t.Errorf("Y = %d, want ~235", y)
	}
	if u := out.Data[1][0]; u < 127 || u > 129 {
		t.Errorf("U = %d, want ~128", u)
	}
}

func TestRescaler_RebuildAndPool(t *testing.T) {
	r, _ := NewRescaler(PixelFormatI420, 320, 240, ScaleModeStretch, nil)

	a, _ := r.Convert(createGradientFrame(640, 480))
	ctx := r.ctx
	r.Release(a)
	b, _ := r.Convert(createGradientFrame(640, 480))
	if r.ctx != ctx {
		t.Error("context rebuilt for unchanged source")
	}
	if a != b {
		t.Error("expected pooled frame to be reused")
	}
	if _, err := r.Convert(createGradientFrame(1280, 720)); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if r.ctx == ctx {
		t.Error("context not rebuilt after source change")
	}
}

func TestNewRescaler_InvalidTarget(t *testing.T) {
	if _, err := NewRescaler(PixelFormatNV12, 0, 0, ScaleModeStretch, nil); err == nil {
		t.Error("expected error for NV12 target")
	}
	if _, err := NewRescaler(PixelFormatI420, -1, 0, ScaleModeStretch, nil); err == nil {
		t.Error("expected error for negative width")
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		maxW, maxH       int
		mode             ScaleMode
		expectW, expectH int
	}{
		{"16:9 to 4:3 fit", 1920, 1080, 640, 480, ScaleModeFit, 640, 360},
		{"4:3 to 16:9 fit", 640, 480, 1280, 720, ScaleModeFit, 960, 720},
		{"same aspect", 1280, 720, 640, 360, ScaleModeFit, 640, 360},
		{"fill mode", 1920, 1080, 640, 480, ScaleModeFill, 640, 480},
		{"stretch mode", 1920, 1080, 640, 480, ScaleModeStretch, 640, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.mode)
			if w != tt.expectW || h != tt.expectH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expectW, tt.expectH, w, h)
			}
		})
	}
}

func createGradientFrame(width, height int) *VideoFrame {
	f := NewI420Frame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Data[0][y*f.Stride[0]+x] = byte(x * 255 / width)
		}
	}
	for i := range f.Data[1] {
		f.Data[1][i] = 128
		f.Data[2][i] = 128
	}
	return f
}

func BenchmarkRescaler_720pTo480p(b *testing.B) {
	frame := createGradientFrame(1280, 720)
	r, _ := NewRescaler(PixelFormatI420, 640, 480, ScaleModeFill, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _ := r.Convert(frame)
		r.Release(out)
	}
}
