package logging

import (
	"os"
)

// LogFile is an open results log file. Appends from a single goroutine only.
type LogFile interface {
	Append(content []byte) error

	// Close flushes the file to stable storage before closing it.
	Close() error
}

// LogFileSystem is the file system the results log is written to. Needed for mocking.
type LogFileSystem interface {
	MkdirAll(dir string) error
	OpenAppend(name string) (LogFile, error)
}

// NewLogFileSystem creates a LogFileSystem backed by the OS.
func NewLogFileSystem() LogFileSystem {
	return osLogFileSystem{}
}

type osLogFileSystem struct{}

func (osLogFileSystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func (osLogFileSystem) OpenAppend(name string) (LogFile, error) {
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &osLogFile{f: f}, nil
}

type osLogFile struct {
	f *os.File
}

func (l *osLogFile) Append(content []byte) error {
	_, err := l.f.Write(content)
	return err
}

func (l *osLogFile) Close() error {
	syncErr := l.f.Sync()
	if err := l.f.Close(); err != nil {
		return err
	}
	return syncErr
}
