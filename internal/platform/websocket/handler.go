package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/referhub/referhub/internal/platform/auth"
)

const maxMessageSize = 4096

// ClientMessage is a control frame sent by a client to change its room
// memberships.
type ClientMessage struct {
	Action string  `json:"action"`
	Room   RoomRef `json:"room"`
}

type RoomRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// ControlReply acknowledges or rejects a ClientMessage. It is queued behind
// any events already pending for the connection.
type ControlReply struct {
	Type    string  `json:"type"`
	Action  string  `json:"action,omitempty"`
	Room    *RoomID `json:"room,omitempty"`
	Message string  `json:"message,omitempty"`
}

// HandlerConfig carries the keep-alive timings of the transport.
type HandlerConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{PingInterval: 30 * time.Second, PongWait: 60 * time.Second, WriteWait: 10 * time.Second}
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to websocket connections and pumps frames
// between the socket and the Hub.
type Handler struct {
	hub    *Hub
	cfg    HandlerConfig
	logger zerolog.Logger
}

func NewHandler(hub *Hub, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the websocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// RegisterStatsRoute exposes connection and room counts. Callers decide which
// group, and therefore which middleware, guards it.
func (h *Handler) RegisterStatsRoute(g *echo.Group) {
	g.GET("/ws/stats", h.HandleStats)
}

// HandleConnect upgrades the connection, registers it with the hub and starts
// the read and write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	subject, ok := auth.CurrentSubject(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client, err := h.hub.Connect("")
	if err != nil {
		ws.Close()
		return err
	}
	h.logger.Info().Str("connection_id", client.ID).Stringer("subject", subject).Str("remote", c.RealIP()).Msg("websocket connected")

	go h.writePump(client, ws)
	go h.readPump(client, subject, ws)
	return nil
}

func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"connections": h.hub.ClientCount(),
		"rooms":       h.hub.Stats(),
	})
}

func (h *Handler) readPump(client *Client, subject auth.Subject, ws *gorillawebsocket.Conn) {
	defer func() {
		if h.hub.LeaveAll(client.ID) {
			h.logger.Info().Str("connection_id", client.ID).Msg("websocket disconnected")
		}
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("connection_id", client.ID).Msg("websocket read failed")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(client, ControlReply{Type: "error", Message: "malformed message"})
			continue
		}
		h.process(client, subject, msg)
	}
}

// process applies one control frame on behalf of subject. The reply is queued
// only after the membership change has taken effect.
func (h *Handler) process(client *Client, subject auth.Subject, msg ClientMessage) {
	room, err := ParseRoom(msg.Room.Kind, msg.Room.ID)
	if err != nil {
		h.reply(client, ControlReply{Type: "error", Action: msg.Action, Message: err.Error()})
		return
	}

	switch msg.Action {
	case "join":
		if !CanJoin(subject, room) {
			err = ErrRoomForbidden
			break
		}
		err = h.hub.Join(client.ID, room)
	case "leave":
		err = h.hub.Leave(client.ID, room)
	default:
		h.reply(client, ControlReply{Type: "error", Action: msg.Action, Message: "unknown action"})
		return
	}
	if err != nil {
		h.reply(client, ControlReply{Type: "error", Action: msg.Action, Room: &room, Message: err.Error()})
		return
	}
	h.reply(client, ControlReply{Type: "ack", Action: msg.Action, Room: &room})
}

func (h *Handler) reply(client *Client, r ControlReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	h.hub.Send(client.ID, data)
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		h.hub.LeaveAll(client.ID)
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
