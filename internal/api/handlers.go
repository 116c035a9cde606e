package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"portfolio-clearinghouse/internal/ingest"
	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"
)

// maxIngestBytes bounds an uploaded trade file.
const maxIngestBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// internalError logs err and answers 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op+" failed",
		append(logger.LogWithTrace(r.Context()), "component", "api", "error", err)...)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// queryDate reads the required ?date=YYYY-MM-DD parameter, writing a 400
// and returning false when it is missing or malformed.
func queryDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		writeError(w, http.StatusBadRequest, "Date parameter is required")
		return time.Time{}, false
	}
	d, err := model.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "healthy", Version: Version}
	status := http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *handler) blotter(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	trades, err := h.Engine.Blotter(r.Context(), date)
	if err != nil {
		internalError(w, r, "blotter", err)
		return
	}

	items := make([]BlotterItem, len(trades))
	for i, t := range trades {
		items[i] = newBlotterItem(t)
	}
	writeJSON(w, http.StatusOK, BlotterResponse{
		Date:  model.FormatDate(date),
		Count: len(items),
		Data:  items,
	})
}

func (h *handler) positions(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	positions, err := h.Engine.Positions(r.Context(), date)
	if err != nil {
		internalError(w, r, "positions", err)
		return
	}
	writeJSON(w, http.StatusOK, PositionsResponse{
		Date:      model.FormatDate(date),
		Positions: positions,
	})
}

func (h *handler) alarms(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	report, err := h.Engine.Alarms(r.Context(), date)
	if err != nil {
		internalError(w, r, "alarms", err)
		return
	}
	if h.Metrics != nil {
		n := 0
		for _, av := range report.Violations {
			n += len(av.Violations)
		}
		h.Metrics.ObserveAlarms(report.Violators(), n)
	}
	writeJSON(w, http.StatusOK, AlarmsResponse{
		Date:       model.FormatDate(date),
		Alarms:     report.Alarms,
		Violations: report.Violations,
	})
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	format, ok := model.ParseFileFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown file format. Use format1 or format2")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	res, err := h.Ingest.Ingest(r.Context(), format, bytes.NewReader(body))
	if err != nil {
		if errors.Is(err, ingest.ErrUnknownFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		internalError(w, r, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) latestAlert(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.URL.Query().Get("account"))
	if account == "" {
		writeError(w, http.StatusBadRequest, "Account parameter is required")
		return
	}
	event, err := h.Alerts.Latest(r.Context(), account)
	if err != nil {
		internalError(w, r, "latest alert", err)
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "No alert for account")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(event)
}
