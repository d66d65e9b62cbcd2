package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/hub"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUserMismatch   = errors.New("user id does not match token")
)

const (
	EventJoin   = "join"
	EventJoined = "joined"
	EventError  = "error"

	maxMessageSize = 4096
)

// Authenticator turns a session token into the user id it was issued for.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

type WebSocketHandler struct {
	// upgrader is used to upgrade the HTTP connection to a WebSocket connection
	upgrader *websocket.Upgrader

	// hub holds the connections and their rooms
	hub *hub.Hub

	// auth validates the token presented with a join
	auth Authenticator

	logger *zap.Logger
}

func NewWebSocketHandler(
	h *hub.Hub,
	auth Authenticator,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		hub:    h,
		auth:   auth,
		logger: logger,
	}
}

func (ws *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := ws.hub.NewClient(conn)
	ws.hub.Connect(client)
	go client.WritePump()
	defer ws.hub.Disconnect(client)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(hub.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hub.PongWait))
	})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil || mt == websocket.CloseMessage {
			ws.logger.Debug("Connection closed",
				zap.String("connID", client.ID()),
				zap.String("room", ws.hub.RoomOf(client)),
			)
			break
		}

		ws.messageHandler(client, msg)
	}
}

func (ws *WebSocketHandler) messageHandler(client *hub.Client, msg []byte) {
	message, err := messageDefiner(msg)
	if err != nil {
		ws.logger.Debug("Failed to define message", zap.Error(err))
		ws.sendError(client, "Invalid message")
		return
	}

	switch v := message.(type) {
	case MessageJoinRequest:
		ws.logger.Debug("Received MessageJoinRequest", zap.String("connID", client.ID()))
		ws.joinRoom(client, v)
	}
}

// joinRoom binds the connection to the room of the user the token was
// issued for. An announced user id must match the token.
func (ws *WebSocketHandler) joinRoom(client *hub.Client, request MessageJoinRequest) {
	userID, err := ws.auth.Authenticate(request.Jwt)
	if err != nil {
		ws.logger.Debug("Failed to validate JWT", zap.Error(err))
		ws.sendError(client, apperrors.Message(err, "Invalid token"))
		return
	}
	if request.UserID != "" && string(request.UserID) != userID {
		ws.logger.Warn("Join rejected", zap.String("connID", client.ID()), zap.Error(ErrUserMismatch))
		ws.sendError(client, "User id does not match token")
		return
	}

	roomName, err := ws.hub.Join(client, userID)
	if err != nil {
		ws.logger.Error("Failed to join room", zap.Error(err))
		ws.sendError(client, "Failed to join room")
		return
	}

	if err := ws.hub.Notify(client, EventJoined, MessageJoinedResponse{
		Room:   roomName,
		UserID: userID,
	}); err != nil {
		ws.logger.Debug("Failed to acknowledge join", zap.Error(err))
	}
	ws.logger.Info("User joined their room", zap.String("userID", userID), zap.String("connID", client.ID()))
}

func (ws *WebSocketHandler) sendError(client *hub.Client, reason string) {
	if err := ws.hub.Notify(client, EventError, MessageErrorResponse{Reason: reason}); err != nil {
		ws.logger.Debug("Failed to send error", zap.Error(err))
	}
}

func messageDefiner(msg []byte) (interface{}, error) {
	var message Message
	if err := json.Unmarshal(msg, &message); err != nil {
		return nil, ErrInvalidMessage
	}
	switch message.Event {
	case EventJoin:
		var joinRequest MessageJoinRequest
		if err := json.Unmarshal(msg, &joinRequest); err != nil {
			return nil, fmt.Errorf("error Unmarshaling MessageJoinRequest: %w", err)
		}
		return joinRequest, nil
	}
	return nil, ErrInvalidMessage
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from the allow-list.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
