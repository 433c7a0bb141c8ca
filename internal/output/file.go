package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/report"
)

var fileFormats = map[string]string{
	"html": ".html",
	"json": ".json",
	"md":   ".md",
}

// FileWriter represents a writer that writes the report to files, one per
// configured format.
type FileWriter struct {
	*config.WriterConfig
	logger *slog.Logger
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *config.WriterConfig) (*FileWriter, error) {
	if wc.FileDir == "" {
		return nil, errors.New("filedir needs to be specified for the FileWriter")
	}
	if len(wc.Formats) == 0 {
		wc.Formats = []string{"html"}
	}
	for _, f := range wc.Formats {
		if _, found := fileFormats[f]; !found {
			return nil, fmt.Errorf("unsupported file format %q, use html, json or md", f)
		}
	}

	if err := os.MkdirAll(wc.FileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.FileDir, err)
	}

	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", FILE_WRITER_TYPE)),
	}, nil
}

func (w *FileWriter) Write(ctx context.Context, r *report.Report) error {
	for _, format := range w.Formats {
		content, err := render(r, format)
		if err != nil {
			return err
		}
		filepath := path.Join(w.FileDir, r.FilenameStem()+fileFormats[format])
		if err := os.WriteFile(filepath, content, 0644); err != nil {
			return fmt.Errorf("error while writing report to file: %w", err)
		}
		w.logger.Info(fmt.Sprintf("wrote report to file %s", filepath))
	}
	return nil
}

func (w *FileWriter) WriteError(ctx context.Context, runErr error) error {
	now := time.Now()
	filepath := path.Join(w.FileDir, "dealerdiff-"+now.Format("20060102-150405")+"-error.txt")
	body := fmt.Sprintf("run failed at %s\n\n%v\n", now.Format("2006-01-02 15:04:05"), runErr)
	if err := os.WriteFile(filepath, []byte(body), 0644); err != nil {
		return fmt.Errorf("error while writing error file: %w", err)
	}
	w.logger.Info(fmt.Sprintf("wrote error to file %s", filepath))
	return nil
}

func render(r *report.Report, format string) ([]byte, error) {
	switch format {
	case "html":
		s, err := r.HTML()
		return []byte(s), err
	case "md":
		s, err := r.Markdown()
		return []byte(s), err
	case "json":
		return encodeJSON(r)
	}
	return nil, fmt.Errorf("unsupported file format %q", format)
}

// encodeJSON encodes v without escaping html characters, prices and model
// names have to stay readable.
func encodeJSON(v any) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("error while encoding report: %w", err)
	}
	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("error while indenting json: %w", err)
	}
	return indentBuffer.Bytes(), nil
}
