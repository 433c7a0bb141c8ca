// Package output provides the interface and implementations for writers
package output

import (
	"context"
	"fmt"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/history"
	"github.com/dealerdiff/dealerdiff/internal/report"
)

// Writer defines the interface for all writers that are responsible
// for writing a report to a specific output.
type Writer interface {
	// Write writes a finished report.
	Write(ctx context.Context, r *report.Report) error
	// WriteError reports a run that could not produce a report at all.
	WriteError(ctx context.Context, runErr error) error
}

const (
	STDOUT_WRITER_TYPE  = "stdout"
	FILE_WRITER_TYPE    = "file"
	API_WRITER_TYPE     = "api"
	EMAIL_WRITER_TYPE   = "email"
	HISTORY_WRITER_TYPE = "history"
)

// Deps are the shared resources some writers need.
type Deps struct {
	Credentials config.Credentials
	History     *history.Store
	// AppName is used in error notifications.
	AppName string
}

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *config.WriterConfig, deps Deps) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc, deps.Credentials)
	case EMAIL_WRITER_TYPE:
		return NewEmailWriter(wc, deps.Credentials, deps.AppName)
	case HISTORY_WRITER_TYPE:
		return NewHistoryWriter(deps.History)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}

// NewWriters creates one writer per configuration.
func NewWriters(wcs []config.WriterConfig, deps Deps) ([]Writer, error) {
	writers := make([]Writer, 0, len(wcs))
	for i := range wcs {
		w, err := NewWriter(&wcs[i], deps)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}
