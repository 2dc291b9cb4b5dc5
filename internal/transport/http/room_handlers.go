package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/directory"
)

// RoomStore is the room directory as seen by the admin API.
type RoomStore interface {
	core.RoomDirectory
	CreateRoom(ctx context.Context, participants ...int64) (*directory.Room, error)
	GetOrCreateDirectRoom(ctx context.Context, userA, userB int64) (*directory.Room, bool, error)
}

// HistoryStore is the message log as seen by the admin API.
type HistoryStore interface {
	core.History
	Clear(ctx context.Context, roomID int64) error
}

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	rooms   RoomStore
	history HistoryStore
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(rooms RoomStore, history HistoryStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms:   rooms,
		history: history,
		log:     logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Participants []int64 `json:"participants" binding:"required,min=1,dive,gt=0"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID           int64   `json:"id"`
	Participants []int64 `json:"participants"`
	CreatedAt    string  `json:"created_at"`
}

// MessageResponse is one stored message in API responses.
type MessageResponse struct {
	ID            string `json:"id"`
	Message       string `json:"message"`
	UserID        int64  `json:"user_id"`
	UserFirstName string `json:"user_first_name"`
	UserLastName  string `json:"user_last_name"`
	Timestamp     string `json:"timestamp"`
}

func roomResponse(room *directory.Room) RoomResponse {
	return RoomResponse{
		ID:           room.ID,
		Participants: room.Participants,
		CreatedAt:    room.CreatedAt.Format(time.RFC3339),
	}
}

// CreateRoom handles room creation. The caller always becomes a participant.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), append(req.Participants, uid)...)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("room_id", room.ID).Int64("user_id", uid).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// DirectRoom returns the two-person room between the caller and another
// user, creating it on first use.
// POST /api/rooms/direct/:user_id
func (h *RoomHandlers) DirectRoom(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}
	other, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || other <= 0 || other == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	room, created, err := h.rooms.GetOrCreateDirectRoom(c.Request.Context(), uid, other)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("other_id", other).Msg("failed to get direct room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, roomResponse(room))
}

// ListMessages returns the room history, oldest first. Participants and
// admins only.
// GET /api/rooms/:room_id/messages
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	roomID, ok := h.roomAccess(c)
	if !ok {
		return
	}

	messages, err := h.history.Recent(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to load history")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history unavailable"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:            msg.ID,
			Message:       msg.Content,
			UserID:        msg.UserID,
			UserFirstName: msg.FirstName,
			UserLastName:  msg.LastName,
			Timestamp:     msg.Timestamp.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, response)
}

// ClearMessages wipes the room history. Mounted behind RequireAdmin.
// DELETE /api/rooms/:room_id/messages
func (h *RoomHandlers) ClearMessages(c *gin.Context) {
	roomID, ok := h.roomAccess(c)
	if !ok {
		return
	}

	if err := h.history.Clear(c.Request.Context(), roomID); err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to clear history")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) userID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, false
	}
	uid, ok := v.(int64)
	if !ok {
		h.log.Error().Msg("invalid user_id type in context")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return 0, false
	}
	return uid, true
}

// roomAccess resolves :room_id and checks the caller may read it.
func (h *RoomHandlers) roomAccess(c *gin.Context) (int64, bool) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, false
	}
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return 0, false
	}

	ctx := c.Request.Context()
	exists, err := h.rooms.RoomExists(ctx, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to check room")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "directory unavailable"})
		return 0, false
	}
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: core.ErrRoomNotFound.Error()})
		return 0, false
	}
	if claims.Admin {
		return roomID, true
	}

	member, err := h.rooms.IsMember(ctx, roomID, claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to check membership")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "directory unavailable"})
		return 0, false
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: core.ErrNotMember.Error()})
		return 0, false
	}
	return roomID, true
}
