package conf

import "github.com/tphakala/voicechanger/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched on each call because the central logger is installed after
// the configuration has been loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
