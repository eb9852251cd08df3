package logging

import (
	"encoding/json"
	"path/filepath"

	"secwaf/waf"

	"github.com/rs/zerolog"
)

// FileName is the results log file name
const FileName = "waf_json.log"

// ClosableResultsLogger is a results logger that holds a resource, such as an open file.
type ClosableResultsLogger interface {
	waf.ResultsLogger
	Close() error
}

type filelogResultsLogger struct {
	fileSystem   LogFileSystem
	file         LogFile
	logger       zerolog.Logger
	writelogline chan []byte
	writeDone    chan bool
}

// NewFileResultsLogger creates a results logger that writes JSON log lines to a file in dir.
// Lines are written one at a time by a single goroutine, so the logger can be shared by concurrent evaluations.
func NewFileResultsLogger(fileSystem LogFileSystem, logger zerolog.Logger, dir string) (ClosableResultsLogger, error) {
	r := &filelogResultsLogger{fileSystem: fileSystem, logger: logger}

	err := fileSystem.MkdirAll(dir)
	if err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("Failed to create the directory while initializing")
		return nil, err
	}

	path := filepath.Join(dir, FileName)
	r.file, err = fileSystem.OpenAppend(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("Failed to open the file at initiation")
		return nil, err
	}

	r.writelogline = make(chan []byte)
	r.writeDone = make(chan bool)
	go func() {
		for v := range r.writelogline {
			if err := r.file.Append(append(v, '\n')); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to write results log line")
			}
			r.writeDone <- true
		}
	}()

	return r, nil
}

func (l *filelogResultsLogger) RuleEvaluated(ev waf.EvaluationEvent) {
	if !shouldLogRule(ev) {
		return
	}
	l.write(ruleLogEntry(ev))
}

func (l *filelogResultsLogger) PhaseCompleted(transactionID string, phase int, decision waf.Decision) {
	if decision == waf.Pass {
		return
	}
	l.write(decisionLogEntry(transactionID, phase, decision))
}

func (l *filelogResultsLogger) write(lg *firewallLogEntry) {
	bb, err := json.Marshal(lg)
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
		return
	}

	l.writelogline <- bb
	<-l.writeDone
}

// Close stops the writer. It must not be called while log lines are still being written.
func (l *filelogResultsLogger) Close() error {
	close(l.writelogline)
	return l.file.Close()
}
