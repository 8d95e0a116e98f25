//go:build !darwin && !linux

package transcode

import "errors"

func loadNvcuvid() error {
	return errors.New("dynamic loading not supported on this platform")
}
