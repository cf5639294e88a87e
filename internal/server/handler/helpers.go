package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// maxBodyBytes caps request bodies; every payload this API accepts is small.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error   string           `json:"error"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Minimum *decimal.Decimal `json:"minimum_next_bid,omitempty"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps engine errors onto HTTP statuses. Unclassified
// errors are logged and reported as 500 without detail.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAuction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	kind := domain.KindOf(err)
	body := errorResponse{Error: err.Error(), Kind: kind}
	var status int
	switch kind {
	case domain.KindBidTooLow, domain.KindSelfOutbid, domain.KindInvalidCeiling:
		status = http.StatusUnprocessableEntity
		var be *domain.BidError
		if errors.As(err, &be) && !be.Minimum.IsZero() {
			body.Minimum = &be.Minimum
		}
	case domain.KindAuctionNotActive, domain.KindDuplicateSubmission:
		status = http.StatusConflict
	case domain.KindLockContention:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case domain.KindNotFound:
		status = http.StatusNotFound
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a size-limited JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler scopes logger to one handler.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
