package transcode

import (
	"os"
	"strings"
	"sync"

	"github.com/pion/logging"
)

var (
	nvidiaOnce sync.Once
	nvidiaOK   bool
)

// NvidiaAvailable reports whether NVIDIA hardware codecs can be used. The
// detection runs once per process; later calls return the cached answer
// regardless of their arguments.
func NvidiaAvailable(cfg Config, lf logging.LoggerFactory) bool {
	nvidiaOnce.Do(func() {
		nvidiaOK = detectNvidia(cfg.CheckNvidiaDev, "/dev", loadNvcuvid, newLogger(lf, "hwdetect"))
	})
	return nvidiaOK
}

// detectNvidia needs the CUVID runtime library to load and a /dev/nvidia*
// device node to exist.
func detectNvidia(enabled bool, devDir string, loadLib func() error, log logging.LeveledLogger) bool {
	if !enabled {
		return false
	}
	if err := loadLib(); err != nil {
		log.Warnf("libnvcuvid.so.1 load failed: %v", err)
		return false
	}
	entries, err := os.ReadDir(devDir)
	if err != nil {
		log.Warnf("scan %s: %v", devDir, err)
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "nvidia") {
			log.Infof("found nvidia device %s/%s", devDir, e.Name())
			return true
		}
	}
	log.Warnf("nvidia codec driver %s/nvidia* not found", devDir)
	return false
}
