//go:build darwin || linux

package transcode

import "github.com/ebitengine/purego"

const nvcuvidLibrary = "libnvcuvid.so.1"

func loadNvcuvid() error {
	handle, err := purego.Dlopen(nvcuvidLibrary, purego.RTLD_LAZY|purego.RTLD_LOCAL)
	if err != nil {
		return err
	}
	return purego.Dlclose(handle)
}
