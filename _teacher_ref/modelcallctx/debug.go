package modelcallctx

import (
	"log"
	"os"
	"strings"
)

// DebugEnabled reports whether conversation debug logging is enabled.
// Enable with AGENTLY_SCHEDULER_DEBUG=1 (or true/yes/on).
// Legacy env (deprecated): AGENTLY_CONVERSATION_DEBUG.
func DebugEnabled() bool {
	v := os.Getenv("AGENTLY_SCHEDULER_DEBUG")
	if strings.TrimSpace(v) == "" {
		v = os.Getenv("AGENTLY_CONVERSATION_DEBUG")
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func debugf(format string, args ...any) { infof(format, args...) }

func infof(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	log.Printf("[debug][conversation][INFO] "+format, args...)
}

func warnf(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	log.Printf("[debug][conversation][WARN] "+format, args...)
}

func errorf(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	log.Printf("[debug][conversation][ERROR] "+format, args...)
}
