package log

import (
	"bytes"
	stdlog "log"
)

// RedirectStdLog sends everything written through the standard library's
// global logger to l at info level.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(&stdWriter{l: l.WithComponent("stdlog")})
}

// ToStdLogger returns a *log.Logger that writes through l.
func ToStdLogger(l Logger) *stdlog.Logger {
	return stdlog.New(&stdWriter{l: l}, "", 0)
}

type stdWriter struct {
	l Logger
}

func (w *stdWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		w.l.Info(string(line))
	}
	return len(p), nil
}
