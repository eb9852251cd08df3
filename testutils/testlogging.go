package testutils

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger creates a zerolog.Logger that writes to testing.T's log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	w := zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(t), func(w *zerolog.ConsoleWriter) {
		w.NoColor = true
	})
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// LogCapture keeps the JSON log lines written through its logger, so tests can look at what was logged.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCapturingLogger creates a logger at the given level together with the capture of its output.
func NewCapturingLogger(level zerolog.Level) (zerolog.Logger, *LogCapture) {
	c := &LogCapture{}
	return zerolog.New(c).Level(level), c
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Entries returns the logged lines with the given message, decoded.
func (c *LogCapture) Entries(msg string) (entries []map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e map[string]interface{}
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if e[zerolog.MessageFieldName] == msg {
			entries = append(entries, e)
		}
	}
	return
}
