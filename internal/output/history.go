package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/history"
	"github.com/dealerdiff/dealerdiff/internal/report"
)

// HistoryWriter records every run in the history store.
type HistoryWriter struct {
	store  *history.Store
	logger *slog.Logger
}

// NewHistoryWriter returns a new HistoryWriter
func NewHistoryWriter(store *history.Store) (*HistoryWriter, error) {
	if store == nil {
		return nil, errors.New("history writer configured but no history store is open")
	}
	return &HistoryWriter{
		store:  store,
		logger: slog.With(slog.String("writer", HISTORY_WRITER_TYPE)),
	}, nil
}

func (w *HistoryWriter) Write(ctx context.Context, r *report.Report) error {
	id, err := w.store.Save(ctx, r)
	if err != nil {
		return err
	}
	w.logger.Info(fmt.Sprintf("saved run %d", id))
	return nil
}

func (w *HistoryWriter) WriteError(ctx context.Context, runErr error) error {
	id, err := w.store.SaveError(ctx, time.Now(), runErr)
	if err != nil {
		return err
	}
	w.logger.Info(fmt.Sprintf("saved failed run %d", id))
	return nil
}
