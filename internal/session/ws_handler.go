package session

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/live-quiz/internal/server"
	httperrors "github.com/gokatarajesh/live-quiz/pkg/http/errors"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

// WSHandler attaches participants and admin panels to the push channel.
type WSHandler struct {
	service *Service
	hub     *ws.Hub
	logger  zerolog.Logger
}

// NewWSHandler creates the /ws handler.
func NewWSHandler(service *Service, hub *ws.Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		logger:  logger.With().Str("component", "session_ws").Logger(),
	}
}

// Register mounts GET /ws on mux.
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades GET /ws?clientId=... for a participant or
// GET /ws?role=admin for the admin panel.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var id, group string
	switch {
	case query.Get("role") == "admin":
		id = "admin:" + uuid.New().String()
		group = ws.GroupAdmins
	case query.Get("clientId") != "":
		id = query.Get("clientId")
		group = ws.GroupClients
		if err := h.service.MarkReady(r.Context(), id); err != nil {
			if errors.Is(err, ErrClientNotFound) {
				httperrors.RespondNotFound(w, httperrors.ErrCodeClientNotFound, "Client not found")
				return
			}
			h.logger.Error().Err(err).Str("client_id", id).Msg("failed to mark client ready")
			httperrors.RespondInternalError(w, "Internal server error")
			return
		}
	default:
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "clientId or role=admin is required", "clientId")
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	logger := h.logger.With().Str("conn_id", id).Str("group", group).Logger()
	wsConn := ws.NewConnection(conn, logger)
	h.hub.Register(id, wsConn)
	h.hub.Join(group, id)
	logger.Info().Msg("push channel connected")

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(id, msg)
	})

	h.hub.Unregister(id, wsConn)
	logger.Info().Msg("push channel closed")
}

// handleMessage answers keepalives; the push channel carries no commands.
func (h *WSHandler) handleMessage(id string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypePing:
		return h.hub.Send(id, ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
	case ws.TypePong:
		return nil
	default:
		errMsg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:    httperrors.ErrCodeUnknownMessageType,
			Message: "Unknown message type: " + msg.Type,
		})
		if err != nil {
			return err
		}
		return h.hub.Send(id, errMsg)
	}
}
