package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/divination"
	"github.com/bobmcallan/lingqian/internal/session"
)

const defaultKeepAlive = 25 * time.Second

// SessionHandler serves the ritual API of the caller's session.
type SessionHandler struct {
	logger    *common.Logger
	resolver  *SessionResolver
	keepAlive time.Duration
}

// NewSessionHandler creates a new session API handler.
func NewSessionHandler(logger *common.Logger, resolver *SessionResolver) *SessionHandler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &SessionHandler{logger: logger, resolver: resolver, keepAlive: defaultKeepAlive}
}

// selectRequest is the body of POST /api/session/deity.
type selectRequest struct {
	Key string `json:"key"`
}

// HandleSession handles GET /api/session.
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	s := h.resolver.Resolve(w, r)
	WriteJSON(w, http.StatusOK, NewSnapshotResponse(s, s.Machine.Snapshot()))
}

// HandleEnd handles DELETE /api/session, discarding the session.
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}
	ended := h.resolver.End(w, r)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ended":  ended,
	})
}

// HandleSelectDeity handles POST /api/session/deity.
func (h *SessionHandler) HandleSelectDeity(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req selectRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		WriteError(w, http.StatusBadRequest, "key is required")
		return
	}

	s := h.resolver.Resolve(w, r)
	snap, err := s.Machine.SelectDeity(req.Key)
	if err != nil {
		h.logger.Debug().Str("session", s.ID).Str("deity", req.Key).Err(err).Msg("select deity rejected")
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, NewSnapshotResponse(s, snap))
}

// HandleDraw handles POST /api/session/draw.
func (h *SessionHandler) HandleDraw(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "draw", func(m *divination.Machine) (divination.Snapshot, error) {
		return m.StartDraw()
	})
}

// HandleThrow handles POST /api/session/throw.
func (h *SessionHandler) HandleThrow(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "throw", func(m *divination.Machine) (divination.Snapshot, error) {
		return m.ConfirmThrow()
	})
}

// HandleDismiss handles POST /api/session/dismiss.
func (h *SessionHandler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "dismiss", func(m *divination.Machine) (divination.Snapshot, error) {
		return m.DismissResult()
	})
}

// HandleReset handles POST /api/session/reset. Reset is valid from any phase.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "reset", func(m *divination.Machine) (divination.Snapshot, error) {
		return m.Reset(), nil
	})
}

func (h *SessionHandler) trigger(w http.ResponseWriter, r *http.Request, op string, fn func(*divination.Machine) (divination.Snapshot, error)) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	s := h.resolver.Resolve(w, r)
	snap, err := fn(s.Machine)
	if err != nil {
		h.logger.Debug().Str("session", s.ID).Str("op", op).Err(err).Msg("trigger rejected")
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, NewSnapshotResponse(s, snap))
}

// HandleResult handles GET /api/session/result.
func (h *SessionHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	s := h.resolver.Resolve(w, r)
	snap, err := s.Machine.Result()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, NewSnapshotResponse(s, snap).Result)
}

// eventPayload is the data line of one SSE message.
type eventPayload struct {
	Type     session.EventType `json:"type"`
	Snapshot *SnapshotResponse `json:"snapshot,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// HandleEvents handles GET /api/session/events, streaming the session's
// machine events as Server-Sent Events. The first message is the current
// snapshot.
func (h *SessionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	s := h.resolver.Resolve(w, r)
	events, unsubscribe := s.Broker.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// The server's write timeout would cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	current := NewSnapshotResponse(s, s.Machine.Snapshot())
	if err := h.writeEvent(w, rc, eventPayload{Type: session.EventPhase, Snapshot: &current}); err != nil {
		h.logger.Warn().Str("session", s.ID).Err(err).Msg("event stream unavailable")
		return
	}

	h.logger.Debug().Str("session", s.ID).Msg("event stream opened")
	defer h.logger.Debug().Str("session", s.ID).Msg("event stream closed")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload := eventPayload{Type: ev.Type, Message: ev.Message}
			if ev.Snapshot != nil {
				resp := NewSnapshotResponse(s, *ev.Snapshot)
				payload.Snapshot = &resp
			}
			if err := h.writeEvent(w, rc, payload); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, p eventPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", p.Type, data); err != nil {
		return err
	}
	return rc.Flush()
}
