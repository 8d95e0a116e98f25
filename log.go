package transcode

import (
	"sync"

	"github.com/pion/logging"
)

var (
	defaultLoggerFactoryOnce sync.Once
	defaultLoggerFactory     logging.LoggerFactory
)

// DefaultLoggerFactory returns the factory used when a component is built
// without one. Levels follow the PION_LOG_* environment variables.
func DefaultLoggerFactory() logging.LoggerFactory {
	defaultLoggerFactoryOnce.Do(func() {
		defaultLoggerFactory = logging.NewDefaultLoggerFactory()
	})
	return defaultLoggerFactory
}

func newLogger(lf logging.LoggerFactory, scope string) logging.LeveledLogger {
	if lf == nil {
		lf = DefaultLoggerFactory()
	}
	return lf.NewLogger(scope)
}
