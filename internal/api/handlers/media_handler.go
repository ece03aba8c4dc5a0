package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/astromitra/astromitra/internal/media"
	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/services"
	"github.com/astromitra/astromitra/internal/utils"
)

type MediaHandler struct {
	tokens   services.TokenService
	provider *media.TokenProvider
}

func NewMediaHandler(tokens services.TokenService, provider *media.TokenProvider) *MediaHandler {
	return &MediaHandler{tokens: tokens, provider: provider}
}

type MediaTokenRequest struct {
	RoomID        string `json:"room_id" binding:"required"`
	ParticipantID string `json:"participant_id" binding:"required"`
}

// Token mints a provider credential for voice/video rooms. Chat sessions
// have no media path and are refused here.
func (h *MediaHandler) Token(c *gin.Context) {
	const op = "MediaHandler.Token"

	var req MediaTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	pc, err := h.tokens.Validate(c.Request.Context(), joinToken(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if pc.RoomID != req.RoomID || pc.ParticipantID != req.ParticipantID {
		writeError(c, utils.E(utils.CodeForbidden, op, "token does not match room or participant", nil))
		return
	}
	if pc.SessionType == models.SessionTypeChat {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "chat sessions have no media channel", nil))
		return
	}

	cred, err := h.provider.Mint(req.RoomID, req.ParticipantID)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to mint media credential", err))
		return
	}
	c.JSON(http.StatusOK, cred)
}
