package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/monitor"
	"htlc-relayer/internal/storage"
	"htlc-relayer/internal/swap"
)

const maxBodyBytes = 1 << 20

// amount accepts a decimal as a JSON string or number and keeps its text.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = amount(n.String())
	return nil
}

// CreateSwapRequest is the body of POST /api/v1/swaps.
type CreateSwapRequest struct {
	ID                    string            `json:"id,omitempty"`
	OrderID               string            `json:"orderId"`
	Maker                 string            `json:"maker"`
	Taker                 string            `json:"taker,omitempty"`
	MakingAmount          amount            `json:"makingAmount"`
	TakingAmount          amount            `json:"takingAmount"`
	MakingToken           string            `json:"makingToken"`
	TakingToken           string            `json:"takingToken"`
	SourceChain           string            `json:"sourceChain"`
	TargetChain           string            `json:"targetChain"`
	SecretHash            string            `json:"secretHash"`
	TimeLock              int64             `json:"timeLock"`
	SourceContract        string            `json:"sourceContract,omitempty"`
	TargetContract        string            `json:"targetContract,omitempty"`
	SourceTransactionHash string            `json:"sourceTransactionHash,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /api/v1/swaps/{id}/status.
type UpdateStatusRequest struct {
	Status                domain.SwapStatus `json:"status"`
	Substatus             string            `json:"substatus,omitempty"`
	Taker                 string            `json:"taker,omitempty"`
	SourceTransactionHash string            `json:"sourceTransactionHash,omitempty"`
	TargetTransactionHash string            `json:"targetTransactionHash,omitempty"`
	Secret                string            `json:"secret,omitempty"`
	RefundTransactionHash string            `json:"refundTransactionHash,omitempty"`
	ErrorMessage          string            `json:"errorMessage,omitempty"`
	ErrorCode             string            `json:"errorCode,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// MonitorStatusResponse is the body of GET /api/v1/monitor/status.
type MonitorStatusResponse struct {
	monitor.Status
	ExpiredSwaps int64 `json:"expiredSwaps"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &swap.ValidationError{Field: "body", Reason: "empty request body"}
		}
		return &swap.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSwapRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	created, err := s.swaps.CreateSwap(r.Context(), swap.CreateParams{
		ID:                    req.ID,
		OrderID:               req.OrderID,
		Maker:                 req.Maker,
		Taker:                 req.Taker,
		MakingAmount:          string(req.MakingAmount),
		TakingAmount:          string(req.TakingAmount),
		MakingToken:           req.MakingToken,
		TakingToken:           req.TakingToken,
		SourceChain:           req.SourceChain,
		TargetChain:           req.TargetChain,
		SecretHash:            req.SecretHash,
		TimeLock:              req.TimeLock,
		SourceContract:        req.SourceContract,
		TargetContract:        req.TargetContract,
		SourceTransactionHash: req.SourceTransactionHash,
		Metadata:              req.Metadata,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	page, err := s.swaps.ListSwaps(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.swaps.GetStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	found, err := s.swaps.GetSwap(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, found)
}

func (s *Server) handleGetByOrder(w http.ResponseWriter, r *http.Request) {
	found, err := s.swaps.GetSwapByOrderID(r.Context(), r.PathValue("orderId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, found)
}

func (s *Server) handleSubresource(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("sub") != "events" {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.Method+" "+r.URL.Path)
		return
	}

	id := r.PathValue("id")
	// An unknown id is a 404, not an empty log.
	if _, err := s.swaps.GetSwap(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.swaps.SwapEvents(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []*domain.SwapEvent{}
	}
	writeData(w, http.StatusOK, events)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	current, err := s.swaps.GetSwap(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	updated, err := s.swaps.UpdateSwapStatus(r.Context(), current.OrderID, swap.StatusUpdate{
		Status:                req.Status,
		Substatus:             req.Substatus,
		Taker:                 req.Taker,
		SourceTransactionHash: req.SourceTransactionHash,
		TargetTransactionHash: req.TargetTransactionHash,
		Secret:                req.Secret,
		RefundTransactionHash: req.RefundTransactionHash,
		ErrorMessage:          req.ErrorMessage,
		ErrorCode:             req.ErrorCode,
		Metadata:              req.Metadata,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.swaps.DeleteSwap(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	var resp MonitorStatusResponse
	if s.monitor != nil {
		resp.Status = s.monitor.Status()
	}

	expired, err := s.swaps.ExpiredSwaps(r.Context(), s.now(), 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.ExpiredSwaps = expired.Total

	writeData(w, http.StatusOK, resp)
}

// parseFilter reads list query parameters into a SwapFilter.
func parseFilter(q url.Values) (storage.SwapFilter, error) {
	f := storage.SwapFilter{
		Status:      domain.SwapStatus(q.Get("status")),
		Maker:       q.Get("maker"),
		Taker:       q.Get("taker"),
		SourceChain: q.Get("sourceChain"),
		TargetChain: q.Get("targetChain"),
		SortBy:      q.Get("sortBy"),
	}

	var err error
	if f.CreatedFrom, err = parseTime(q.Get("from")); err != nil {
		return f, &swap.ValidationError{Field: "from", Reason: err.Error()}
	}
	if f.CreatedTo, err = parseTime(q.Get("to")); err != nil {
		return f, &swap.ValidationError{Field: "to", Reason: err.Error()}
	}
	if f.Limit, err = parseInt(q.Get("limit")); err != nil {
		return f, &swap.ValidationError{Field: "limit", Reason: err.Error()}
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		return f, &swap.ValidationError{Field: "offset", Reason: err.Error()}
	}

	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
		f.SortDesc = true
	case "asc":
	default:
		return f, &swap.ValidationError{Field: "order", Reason: "must be asc or desc"}
	}
	return f, nil
}

// parseTime accepts RFC3339 or Unix milliseconds and returns Unix ms.
func parseTime(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms < 0 {
			return 0, errors.New("must not be negative")
		}
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, errors.New("must be RFC3339 or unix milliseconds")
	}
	return t.UnixMilli(), nil
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return n, nil
}
