package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/report"
)

// StdoutWriter represents a writer that writes to stdout
type StdoutWriter struct {
	out    io.Writer
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *config.WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		out:    os.Stdout,
		logger: slog.With(slog.String("writer", STDOUT_WRITER_TYPE)),
	}
}

func (w *StdoutWriter) Write(ctx context.Context, r *report.Report) error {
	return r.WriteTable(w.out)
}

func (w *StdoutWriter) WriteError(ctx context.Context, runErr error) error {
	w.logger.Error(fmt.Sprintf("run failed: %v", runErr))
	_, err := fmt.Fprintf(w.out, "run failed: %v\n", runErr)
	return err
}
