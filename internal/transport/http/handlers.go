package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/app/chat"
	"github.com/dkeye/chatsync/internal/domain"
)

// ChatService is the coordinator as seen by the HTTP surface.
type ChatService interface {
	CreateChat(ctx context.Context, req chat.CreateChatRequest) (domain.PopulatedChat, error)
	SubmitMessage(ctx context.Context, chatID domain.ChatID, in chat.MessageInput) (domain.PopulatedChat, error)
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.PopulatedChat, error)
	ChatsForUser(ctx context.Context, username string) ([]domain.PopulatedChat, error)
	AddParticipant(ctx context.Context, chatID domain.ChatID, req chat.AddParticipantRequest) (domain.PopulatedChat, error)
	RegisterUser(ctx context.Context, username string) (domain.User, error)
	LookupUser(ctx context.Context, username string) (domain.User, error)
}

type ChatHandler struct {
	service ChatService
}

func NewChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// Register mounts the chat and user routes on g.
func (h *ChatHandler) Register(g gin.IRoutes) {
	g.POST("/chats", h.CreateChat)
	g.POST("/createChat", h.CreateChat)
	g.GET("/chats/:chatId", h.GetChat)
	g.GET("/chats/user/:username", h.ChatsForUser)
	g.POST("/chats/:chatId/messages", h.SubmitMessage)
	g.POST("/chats/:chatId/participants", h.AddParticipant)
	g.POST("/users", h.RegisterUser)
	g.GET("/users/:username", h.LookupUser)
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req chat.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	out, err := h.service.CreateChat(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	out, err := h.service.GetChat(c.Request.Context(), domain.ChatID(c.Param("chatId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) ChatsForUser(c *gin.Context) {
	out, err := h.service.ChatsForUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) SubmitMessage(c *gin.Context) {
	var in chat.MessageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	out, err := h.service.SubmitMessage(c.Request.Context(), domain.ChatID(c.Param("chatId")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) AddParticipant(c *gin.Context) {
	var req chat.AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	out, err := h.service.AddParticipant(c.Request.Context(), domain.ChatID(c.Param("chatId")), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type registerRequest struct {
	Username string `json:"username"`
}

func (h *ChatHandler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	u, err := h.service.RegisterUser(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *ChatHandler) LookupUser(c *gin.Context) {
	u, err := h.service.LookupUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Health reports liveness; ping, when set, checks the store.
func Health(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				resp["status"] = "degraded"
				resp["store"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, resp)
				return
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// StatusOf maps a service error onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrChatNotFound),
		errors.Is(err, domain.ErrUsersNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "transport.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
