//go:build darwin || linux

// Shared utilities for purego-based library loading.

package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for *(*byte)(unsafe.Add(p, length)) != 0 {
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// sharedLibName returns the platform file name of lib, e.g. "stream_opus"
// becomes libstream_opus.so or libstream_opus.dylib.
func sharedLibName(lib string) string {
	if runtime.GOOS == "darwin" {
		return "lib" + lib + ".dylib"
	}
	return "lib" + lib + ".so"
}

// libSearchPaths lists the candidate locations of a shared library in
// lookup order: the envVar override, STREAM_SDK_LIB_PATH, next to the
// executable, the source build directory, the build directories of the
// working directory and its parents up to the module root, then the
// system paths.
func libSearchPaths(lib, envVar string) []string {
	libName := sharedLibName(lib)
	var paths []string

	if envPath := os.Getenv(envVar); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("STREAM_SDK_LIB_PATH"); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	var dirs []string
	if root := findSourceRoot(); root != "" {
		dirs = append(dirs, root)
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, buildRoots(wd, maxBuildWalk)...)
	}
	for _, dir := range dirs {
		paths = append(paths,
			filepath.Join(dir, "build", libName),
			filepath.Join(dir, "build", "ffi", libName),
		)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/opt/homebrew/lib", libName),
		)
	case "linux":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/usr/lib", libName),
		)
	}
	return paths
}

// findSourceRoot returns the directory holding this source file. It only
// resolves in builds that keep source paths, such as tests.
func findSourceRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	dir := filepath.Dir(file)
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err != nil {
		return ""
	}
	return dir
}

// maxBuildWalk bounds the upward search when no go.mod is found.
const maxBuildWalk = 4

// buildRoots lists dir and its parents, ending at the first one holding a
// go.mod or after levels entries.
func buildRoots(dir string, levels int) []string {
	var dirs []string
	for i := 0; i < levels; i++ {
		dirs = append(dirs, dir)
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dirs
}

// copyI420 copies a decoder-owned I420 picture into a frame the caller
// may keep. The library reuses its planes on the next call.
func copyI420(y, u, v uintptr, yStride, uvStride, width, height int) *VideoFrame {
	f := NewI420Frame(width, height)
	cw, ch := (width+1)/2, (height+1)/2
	for row := 0; row < height; row++ {
		copy(f.Data[0][row*width:], unsafe.Slice((*byte)(unsafe.Pointer(y+uintptr(row*yStride))), width))
	}
	for row := 0; row < ch; row++ {
		copy(f.Data[1][row*cw:], unsafe.Slice((*byte)(unsafe.Pointer(u+uintptr(row*uvStride))), cw))
		copy(f.Data[2][row*cw:], unsafe.Slice((*byte)(unsafe.Pointer(v+uintptr(row*uvStride))), cw))
	}
	return f
}

// i420Input validates a raw frame handed to a video encoder.
func i420Input(raw RawFrame, width, height int) (*VideoFrame, error) {
	f, ok := raw.(*VideoFrame)
	if !ok || f.Format != PixelFormatI420 || len(f.Data) < 3 || len(f.Stride) < 3 {
		return nil, fmt.Errorf("%w: expected an I420 video frame", ErrInvalidData)
	}
	if f.Width != width || f.Height != height {
		return nil, fmt.Errorf("%w: frame %dx%d, encoder opened at %dx%d", ErrInvalidData, f.Width, f.Height, width, height)
	}
	if len(f.Data[0]) == 0 || len(f.Data[1]) == 0 || len(f.Data[2]) == 0 {
		return nil, fmt.Errorf("%w: empty plane", ErrInvalidData)
	}
	return f, nil
}
