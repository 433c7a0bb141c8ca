package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/report"
	"github.com/dealerdiff/dealerdiff/internal/types"
)

// APIWriter represents a writer that posts the report to an http endpoint.
type APIWriter struct {
	*config.WriterConfig
	client *http.Client
	logger *slog.Logger
}

type runStatus struct {
	Status    string    `json:"status"`
	ErrorKind string    `json:"error_kind"`
	Error     string    `json:"error"`
	Time      time.Time `json:"time"`
}

// NewAPIWriter returns a new APIWriter. Credentials from the environment
// take precedence over the ones in the configuration file.
func NewAPIWriter(wc *config.WriterConfig, creds config.Credentials) (*APIWriter, error) {
	if wc.Uri == "" {
		return nil, errors.New("uri needs to be specified for the APIWriter")
	}
	if creds.APIUser != "" {
		wc.User = creds.APIUser
	}
	if creds.APIPassword != "" {
		wc.Password = creds.APIPassword
	}
	return &APIWriter{
		WriterConfig: wc,
		client: &http.Client{
			Timeout: time.Second * 60,
		},
		logger: slog.With(slog.String("writer", API_WRITER_TYPE)),
	}, nil
}

func (w *APIWriter) Write(ctx context.Context, r *report.Report) error {
	body, err := encodeJSON(r)
	if err != nil {
		return err
	}
	if w.DryRun {
		// in dry run mode we do not write anything to the api
		w.logger.Info(fmt.Sprintf("dry run, not posting report (%d bytes) to %s", len(body), w.Uri))
		fmt.Println(string(body))
		return nil
	}
	if err := w.post(ctx, body); err != nil {
		return fmt.Errorf("error while posting report: %w", err)
	}
	w.logger.Info(fmt.Sprintf("posted report to %s", w.Uri))
	return nil
}

func (w *APIWriter) WriteError(ctx context.Context, runErr error) error {
	body, err := encodeJSON(runStatus{
		Status:    "failed",
		ErrorKind: types.ErrorKind(runErr),
		Error:     runErr.Error(),
		Time:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if w.DryRun {
		w.logger.Info(fmt.Sprintf("dry run, not posting run status to %s", w.Uri))
		return nil
	}
	if err := w.post(ctx, body); err != nil {
		return fmt.Errorf("error while posting run status: %w", err)
	}
	return nil
}

func (w *APIWriter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Uri, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header = map[string][]string{
		"Content-Type": {"application/json"},
	}
	if w.User != "" {
		req.SetBasicAuth(w.User, w.Password)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug(fmt.Sprintf("post request body %s", body))
		return fmt.Errorf("error while sending post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error while reading post request response: %w", err)
		}
		return fmt.Errorf("unexpected status code %d, response: %s", resp.StatusCode, respBody)
	}
	return nil
}
