package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/services"
	"github.com/astromitra/astromitra/internal/utils"
)

type SessionHandler struct {
	tokens   services.TokenService
	sessions services.SessionService
}

func NewSessionHandler(tokens services.TokenService, sessions services.SessionService) *SessionHandler {
	return &SessionHandler{tokens: tokens, sessions: sessions}
}

type ValidateRequest struct {
	Token string `json:"token" binding:"required"`
}

type ValidateFailure struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Validate resolves a join token to the pre-join context. Read-only:
// nothing is marked joined here.
func (h *SessionHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Validate", "invalid request body", err))
		return
	}

	pc, err := h.tokens.Validate(c.Request.Context(), req.Token)
	if err != nil {
		switch {
		case utils.IsCode(err, utils.CodeTokenExpired),
			utils.IsCode(err, utils.CodeTokenNotFound),
			utils.IsCode(err, utils.CodeSessionTerminal):
			var msg string
			if ae, ok := err.(*utils.AppError); ok {
				msg = ae.Message
			}
			c.JSON(http.StatusOK, ValidateFailure{Valid: false, Message: msg})
		default:
			writeError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, pc)
}

type JoinRequest struct {
	ParticipantType models.ParticipantType `json:"participant_type" binding:"required"`
}

type JoinResponse struct {
	SessionID string               `json:"session_id"`
	RoomID    string               `json:"room_id"`
	Status    models.SessionStatus `json:"status"`
}

// Join performs the scheduled->joined side effect. The token authorizes
// the caller as one of the session's two parties; repeats are idempotent.
func (h *SessionHandler) Join(c *gin.Context) {
	const op = "SessionHandler.Join"

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	pc, err := h.tokens.Validate(c.Request.Context(), joinToken(c))
	if err != nil {
		writeError(c, err)
		return
	}

	sessionID := c.Param("session_id")
	if sessionID != pc.SessionID || req.ParticipantType != pc.ParticipantType {
		writeError(c, utils.E(utils.CodeForbidden, op, "token does not match session or role", nil))
		return
	}

	sess, err := h.sessions.Join(c.Request.Context(), sessionID, pc.ParticipantType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, JoinResponse{SessionID: sess.SessionID, RoomID: sess.RoomID, Status: sess.Status})
}

type EndRequest struct {
	Reason string `json:"reason"`
}

type EndResponse struct {
	Status         models.SessionStatus `json:"status"`
	ElapsedSeconds int64                `json:"elapsed_seconds"`
}

// End transitions the session to ended. Safe to repeat; both calls see
// the same final elapsed seconds.
func (h *SessionHandler) End(c *gin.Context) {
	const op = "SessionHandler.End"

	var req EndRequest
	_ = c.ShouldBindJSON(&req)

	// linkValidUntil bounds joining only; an expired or already-terminal
	// token may still end its session
	pc, err := h.tokens.Validate(c.Request.Context(), joinToken(c))
	if err != nil && !utils.IsCode(err, utils.CodeSessionTerminal) && !utils.IsCode(err, utils.CodeTokenExpired) {
		writeError(c, err)
		return
	}

	sessionID := c.Param("session_id")
	if pc != nil && sessionID != pc.SessionID {
		writeError(c, utils.E(utils.CodeForbidden, op, "token does not match session", nil))
		return
	}

	reason := services.ReasonEndedByUser
	if pc != nil && pc.ParticipantType == models.ParticipantAstrologer {
		reason = services.ReasonEndedByAstro
	}
	if req.Reason != "" {
		reason = req.Reason
	}

	sess, err := h.sessions.End(c.Request.Context(), sessionID, reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, EndResponse{Status: sess.Status, ElapsedSeconds: sess.ElapsedSeconds})
}

// Cancel is called by the booking layer (refund flow); it wins from any
// state and tears the room down immediately.
func (h *SessionHandler) Cancel(c *gin.Context) {
	sess, err := h.sessions.Cancel(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, EndResponse{Status: sess.Status, ElapsedSeconds: sess.ElapsedSeconds})
}
