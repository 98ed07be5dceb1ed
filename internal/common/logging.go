package common

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	logger = log.New(os.Stderr, "[blfgate] ", log.LstdFlags|log.Lmicroseconds)
	quiet  atomic.Bool
)

// Logf reports a recoverable anomaly. It is silent while quiet mode is on.
func Logf(format string, args ...interface{}) {
	if quiet.Load() {
		return
	}
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

// SetLogOutput redirects log output, e.g. to a rotating file.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetQuiet suppresses Logf output. Fatalf is never suppressed.
func SetQuiet(q bool) {
	quiet.Store(q)
}
