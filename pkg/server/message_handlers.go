package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glimpse-social/glimpse/pkg/database"
	"github.com/glimpse-social/glimpse/pkg/presence"
)

type sendMessageRequest struct {
	TextMessage string `json:"textMessage"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TextMessage == "" {
		respondError(c, http.StatusBadRequest, "textMessage is required")
		return
	}
	if len(req.TextMessage) > s.config.Limits.MaxMessageLength {
		respondError(c, http.StatusBadRequest, "message is too long")
		return
	}

	senderID := currentUserID(c)
	receiverID := c.Param("id")

	msg, err := s.db.AppendMessage(senderID, receiverID, req.TextMessage)
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	// Persisted; push to the receiver's live connection if they're online.
	// Offline receivers read the history on their next fetch.
	s.router.Route(receiverID, presence.EventNewMessage, msg)

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"newMessage": msg,
	})
}

func (s *Server) handleListMessages(c *gin.Context) {
	messages, err := s.db.MessagesBetween(currentUserID(c), c.Param("id"))
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": messages,
	})
}
