package observability

import (
	"fmt"

	"github.com/tphakala/voicechanger/internal/logger"
)

// GetLogger returns the observability package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("metrics")
}

// promLogger adapts logger.Logger to the promhttp error log
type promLogger struct {
	log logger.Logger
}

func (p promLogger) Println(v ...any) {
	p.log.Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
