// Package rpcapi exposes the action pipeline over HTTP.
package rpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/actionsvc"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/app/notify"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/platform/auth"
	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Poster interface {
	Post(ctx context.Context, req actionsvc.PostRequest, p factory.Params) (actionsvc.PostResponse, error)
}

type MessageFetcher interface {
	FetchByMsgID(ctx context.Context, msgID string) (contracts.TransportMessage, bool, error)
}

type RecordFinder interface {
	FindRecord(ctx context.Context, msgID string, dir contracts.Direction) (contracts.TransportRecord, bool, error)
}

// EventSource is satisfied by *notify.Hub.
type EventSource interface {
	Subscribe(events ...string) (<-chan notify.Notification, func())
}

// Handler serves the node's RPC surface. Ready reports whether the node's
// dependencies are reachable; KeepAlive is the comment-line interval on idle
// event streams.
type Handler struct {
	Actions   Poster
	Messages  MessageFetcher
	Records   RecordFinder
	APIKey    auth.APIKey
	Logger    *zap.Logger
	Ready     func(ctx context.Context) error
	Metrics   http.Handler
	Events    EventSource
	KeepAlive time.Duration
}

func NewHandler(actions Poster, messages MessageFetcher, records RecordFinder, key auth.APIKey, logger *zap.Logger) *Handler {
	return &Handler{
		Actions:   actions,
		Messages:  messages,
		Records:   records,
		APIKey:    key,
		Logger:    logging.OrNop(logger),
		KeepAlive: 15 * time.Second,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", h.handleReady)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)
		authR.Post("/api/v1/actions/{type}", h.handlePostAction)
		authR.Get("/api/v1/messages/{msgid}", h.handleGetMessage)
		if h.Events != nil {
			authR.Get("/api/v1/events", h.handleEvents)
		}
	})
	return r
}

type postActionRequest struct {
	Wallet      string          `json:"wallet"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Days        int             `json:"days"`
	EstimateFee bool            `json:"estimate_fee"`
	Objects     []contracts.KVS `json:"objects"`
	Params      json.RawMessage `json:"params"`
}

// actionType accepts LISTING_ADD, listing_add and listing-add.
func actionType(raw string) contracts.ActionType {
	return contracts.ActionType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
}

func (h *Handler) handlePostAction(w http.ResponseWriter, r *http.Request) {
	t := actionType(chi.URLParam(r, "type"))
	if !t.Valid() {
		h.writeError(w, http.StatusNotFound, "unknown action type")
		return
	}
	var req postActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Wallet) == "" || strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		h.writeError(w, http.StatusBadRequest, "wallet, from and to are required")
		return
	}
	params, ok := factory.NewParams(t)
	if !ok {
		h.writeError(w, http.StatusNotImplemented, "no parameters for "+string(t))
		return
	}
	if len(req.Params) == 0 {
		h.writeError(w, http.StatusBadRequest, "params are required")
		return
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid params: "+err.Error())
		return
	}

	resp, err := h.Actions.Post(r.Context(), actionsvc.PostRequest{
		Wallet:      req.Wallet,
		From:        req.From,
		To:          req.To,
		Days:        req.Days,
		EstimateFee: req.EstimateFee,
		Objects:     req.Objects,
	}, params)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("post action", zap.String("type", string(t)), zap.Error(err))
		}
		h.writeActionError(w, status, err)
		return
	}
	if req.EstimateFee {
		h.writeJSON(w, http.StatusOK, resp)
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

type messageResponse struct {
	Message  *contracts.TransportMessage `json:"message,omitempty"`
	Outgoing *contracts.TransportRecord  `json:"outgoing,omitempty"`
	Incoming *contracts.TransportRecord  `json:"incoming,omitempty"`
}

func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msgID := strings.TrimSpace(chi.URLParam(r, "msgid"))
	var resp messageResponse
	if h.Messages != nil {
		tm, found, err := h.Messages.FetchByMsgID(r.Context(), msgID)
		if err != nil {
			h.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if found {
			resp.Message = &tm
		}
	}
	if h.Records != nil {
		for _, dir := range []contracts.Direction{contracts.DirectionOutgoing, contracts.DirectionIncoming} {
			rec, found, err := h.Records.FindRecord(r.Context(), msgID, dir)
			if err != nil {
				h.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !found {
				continue
			}
			if dir == contracts.DirectionOutgoing {
				resp.Outgoing = &rec
			} else {
				resp.Incoming = &rec
			}
		}
	}
	if resp.Message == nil && resp.Outgoing == nil && resp.Incoming == nil {
		h.writeError(w, http.StatusNotFound, "message not found")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams notifications as server-sent events. The optional
// event query parameter (repeatable or comma separated) filters by event name.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	var events []string
	for _, raw := range r.URL.Query()["event"] {
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				events = append(events, e)
			}
		}
	}
	ch, release := h.Events.Subscribe(events...)
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case n := <-ch:
			data, err := json.Marshal(n)
			if err != nil {
				h.Logger.Warn("encode event", zap.String("event", n.Event), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Event, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// statusFor maps the pipeline's failure kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, actionerr.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, actionerr.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, actionerr.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, actionerr.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, actionerr.ErrMissingParam), errors.Is(err, actionerr.ErrInvalidParam):
		return http.StatusBadRequest
	case errors.Is(err, actionerr.ErrHashMismatch), errors.Is(err, actionerr.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.APIKey.Check(auth.FromRequest(r)); err != nil {
			h.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeActionError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	var ae *actionerr.Error
	if errors.As(err, &ae) && ae.Kind != nil {
		body["kind"] = ae.Kind.Error()
	}
	h.writeJSON(w, status, body)
}
