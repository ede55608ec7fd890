package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	Log *zap.SugaredLogger

	nopOnce sync.Once
	nop     *zap.SugaredLogger
)

func InitLogger(development bool) error {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Sampling = &zap.SamplingConfig{
		Initial:    100,
		Thereafter: 100,
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Log = logger.Sugar()
	return nil
}

// L returns the process logger, or a no-op logger when InitLogger was never
// called (tests, library use).
func L() *zap.SugaredLogger {
	if Log != nil {
		return Log
	}
	nopOnce.Do(func() {
		nop = zap.NewNop().Sugar()
	})
	return nop
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	keyValuePairs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		keyValuePairs = append(keyValuePairs, k, v)
	}

	return L().With(keyValuePairs...)
}
