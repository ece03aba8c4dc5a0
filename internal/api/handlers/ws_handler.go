package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/room"
	"github.com/astromitra/astromitra/internal/services"
	"github.com/astromitra/astromitra/internal/utils"
)

type WSHandler struct {
	tokens   services.TokenService
	sessions services.SessionService
	hub      *room.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(tokens services.TokenService, sessions services.SessionService, hub *room.Hub) *WSHandler {
	return &WSHandler{
		tokens:   tokens,
		sessions: sessions,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type string `json:"type"` // message|file|typing|stop-typing|signaling|heartbeat|leave|end

	Text       string          `json:"text,omitempty"`
	FileBase64 string          `json:"file_base64,omitempty"`
	FileName   string          `json:"file_name,omitempty"`
	MimeType   string          `json:"mime_type,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

const sendAttempts = 3

// RoomWS is the realtime channel for one room. The connection itself is
// the presence signal: registering on open, heartbeats while reading,
// and the grace-window reaper after the socket dies.
func (h *WSHandler) RoomWS(c *gin.Context) {
	const op = "WSHandler.RoomWS"

	pc, err := h.tokens.Validate(c.Request.Context(), joinToken(c))
	if err != nil {
		writeError(c, err)
		return
	}

	roomID := c.Param("room_id")
	if roomID != pc.RoomID {
		writeError(c, utils.E(utils.CodeForbidden, op, "token does not match room", nil))
		return
	}

	// join side effects must have happened already
	sess, err := h.sessions.Get(c.Request.Context(), pc.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.Status.Terminal() {
		writeError(c, utils.E(utils.CodeSessionTerminal, op, "session already "+string(sess.Status), nil))
		return
	}
	if sess.Status == models.StatusScheduled {
		writeError(c, utils.E(utils.CodeConflict, op, "join the session before connecting", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	rm := h.hub.GetOrCreate(sess)

	events := rm.Subscribe(pc.ParticipantType)
	rm.Join(pc.ParticipantID, pc.ParticipantType)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			rm.Heartbeat(pc.ParticipantType)
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				// connection loss is not a leave; the grace reaper decides
				return
			}
			rm.Heartbeat(pc.ParticipantType)

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid json"}`))
				continue
			}

			switch msg.Type {
			case "message":
				h.relay(wc, rm, pc, models.KindText, []byte(msg.Text), "", "")

			case "file":
				raw, derr := base64.StdEncoding.DecodeString(msg.FileBase64)
				if derr != nil {
					_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid file_base64"}`))
					continue
				}
				h.relay(wc, rm, pc, models.KindFile, raw, msg.FileName, msg.MimeType)

			case "typing":
				h.relay(wc, rm, pc, models.KindTyping, nil, "", "")

			case "stop-typing":
				h.relay(wc, rm, pc, models.KindStopTyping, nil, "", "")

			case "signaling":
				h.relay(wc, rm, pc, models.KindSignaling, msg.Signal, "", "")

			case "heartbeat":
				// already counted above

			case "leave":
				rm.Leave(pc.ParticipantType)
				return

			case "end":
				reason := services.ReasonEndedByUser
				if pc.ParticipantType == models.ParticipantAstrologer {
					reason = services.ReasonEndedByAstro
				}
				_, _ = h.sessions.End(c.Request.Context(), pc.SessionID, reason)
				return

			default:
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"unknown message type"}`))
			}
		}
	}()

	// writer: room events -> WS
	for {
		select {
		case <-readDone:
			rm.Unsubscribe(pc.ParticipantType, events)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if werr := wc.writeJSON(ev); werr != nil {
				rm.Unsubscribe(pc.ParticipantType, events)
				return
			}
			if ev.Type == room.EventSessionEnded {
				return
			}
		}
	}
}

// relay pushes one message into the room. Durable kinds get a bounded
// retry before the failure is surfaced to the sender; ephemeral kinds
// are fire-and-forget.
func (h *WSHandler) relay(wc *wsConn, rm *room.Room, pc *services.PreJoinContext, kind models.MessageKind, payload []byte, fileName, mimeType string) {
	msg := &models.RoomMessage{
		SenderID:   pc.ParticipantID,
		SenderType: pc.ParticipantType,
		Kind:       kind,
		Payload:    payload,
		FileName:   fileName,
		MimeType:   mimeType,
	}

	var err error
	attempts := sendAttempts
	if kind.Ephemeral() {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err = rm.Send(msg); err == nil {
			return
		}
		if utils.IsCode(err, utils.CodePayloadTooLarge) {
			break
		}
		if i < attempts-1 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	if kind.Ephemeral() {
		return
	}

	code := utils.CodeUnavailable
	if utils.IsCode(err, utils.CodePayloadTooLarge) {
		code = utils.CodePayloadTooLarge
	}
	b, _ := json.Marshal(gin.H{"type": "send-failed", "code": code, "kind": kind})
	_ = wc.writeText(b)
}
