package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"
)

// ErrUnknownFormat is returned for a format other than format1 or format2.
var ErrUnknownFormat = errors.New("unknown file format")

// maxReportedErrors caps the row errors echoed back to callers.
const maxReportedErrors = 100

// Result summarizes one ingestion.
type Result struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors"`
}

// Service parses trade files and saves the accepted rows.
type Service struct {
	store model.TradeWriter

	// OnIngest is called after every ingestion (optional, for metrics).
	OnIngest func(format model.FileFormat, accepted, rejected int)
}

// NewService creates a Service writing to store.
func NewService(store model.TradeWriter) *Service {
	return &Service{store: store}
}

// Parse dispatches to the parser for format.
func Parse(format model.FileFormat, r io.Reader) ([]model.Trade, []RowError, error) {
	switch format {
	case model.Format1:
		trades, errs := ParseFormat1(r)
		return trades, errs, nil
	case model.Format2:
		trades, errs := ParseFormat2(r)
		return trades, errs, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Ingest parses r as format and saves every valid row in one transaction.
// Malformed rows are rejected individually. If the save fails, nothing is
// stored and every row counts as rejected.
func (s *Service) Ingest(ctx context.Context, format model.FileFormat, r io.Reader) (Result, error) {
	trades, rowErrs, err := Parse(format, r)
	if err != nil {
		return Result{}, err
	}

	res := Result{Errors: make([]string, 0, len(rowErrs))}
	for i, re := range rowErrs {
		if i == maxReportedErrors {
			res.Errors = append(res.Errors, fmt.Sprintf("... %d more", len(rowErrs)-i))
			break
		}
		res.Errors = append(res.Errors, re.Error())
	}

	if len(trades) > 0 {
		n, err := s.store.SaveTrades(ctx, trades)
		if err != nil {
			res.Rejected = len(trades) + len(rowErrs)
			s.report(ctx, format, res)
			return res, fmt.Errorf("save %s trades: %w", format, err)
		}
		res.Accepted = n
	}
	res.Rejected = len(rowErrs)
	s.report(ctx, format, res)
	return res, nil
}

// IngestFile ingests the file at path.
func (s *Service) IngestFile(ctx context.Context, path string, format model.FileFormat) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return s.Ingest(ctx, format, f)
}

func (s *Service) report(ctx context.Context, format model.FileFormat, res Result) {
	if s.OnIngest != nil {
		s.OnIngest(format, res.Accepted, res.Rejected)
	}
	level := slog.LevelInfo
	if res.Rejected > 0 {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "ingested trades",
		append(logger.LogWithTrace(ctx),
			"component", "ingest",
			"format", string(format),
			"accepted", res.Accepted,
			"rejected", res.Rejected)...)
}
