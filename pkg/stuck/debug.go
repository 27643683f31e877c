package stuck

import "github.com/antibyte/stuck/pkg/logger"

// debugLog writes interpreter traces when the interpreter log area is enabled.
func debugLog(format string, args ...interface{}) {
	logger.Debug(logger.AreaInterpreter, format, args...)
}
