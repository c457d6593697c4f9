// Package api implements the control plane: three request/response
// operations for creating a room, confirming membership preflight, and
// previewing room metadata. Control-plane errors never affect live
// connections.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khanmassab/flixers/internal/v1/hub"
	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/middleware"
	"github.com/khanmassab/flixers/internal/v1/mirror"
	"go.uber.org/zap"
)

// mirrorBudget bounds cache round-trips; on timeout the in-memory registry
// is authoritative.
const mirrorBudget = 5 * time.Second

// Handler exposes the room control-plane endpoints.
type Handler struct {
	hub   *hub.Hub
	store hub.MetadataMirror
}

// NewHandler wires the control plane to the registry and the optional mirror.
func NewHandler(h *hub.Hub, store hub.MetadataMirror) *Handler {
	return &Handler{hub: h, store: store}
}

// createRoomRequest is the optional creation body.
type createRoomRequest struct {
	EncryptionRequired *bool   `json:"encryptionRequired"`
	VideoURL           string  `json:"videoUrl"`
	VideoTime          float64 `json:"videoTime"`
}

// userInfo echoes the verified identity back to the caller.
type userInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// roomResponse is the shared shape of create, preflight, and preview.
type roomResponse struct {
	RoomID             string   `json:"roomId"`
	EncryptionRequired bool     `json:"encryptionRequired"`
	VideoURL           string   `json:"videoUrl,omitempty"`
	TitleID            string   `json:"titleId,omitempty"`
	InitialTime        float64  `json:"initialTime"`
	User               userInfo `json:"user"`
}

// CreateRoom handles POST /rooms.
func (h *Handler) CreateRoom(c *gin.Context) {
	claims := middleware.SessionClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createRoomRequest
	// The body is optional; a missing or malformed body means all defaults.
	_ = c.ShouldBindJSON(&req)

	roomID := NewRoomID()
	titleID := ExtractTitleID(req.VideoURL)

	opts := hub.RoomOptions{
		EncryptionRequired: req.EncryptionRequired,
		VideoURL:           req.VideoURL,
		TitleID:            titleID,
		InitialTime:        &req.VideoTime,
	}
	room := h.hub.EnsureRoom(roomID, opts)

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), mirrorBudget)
		defer cancel()
		err := h.store.SaveRoom(ctx, mirror.RoomMeta{
			RoomID:             roomID,
			EncryptionRequired: room.EncryptionRequired,
			VideoURL:           req.VideoURL,
			TitleID:            titleID,
			InitialTime:        req.VideoTime,
			CreatedAt:          room.CreatedAt.UnixMilli(),
		})
		if err != nil {
			// Best-effort: the in-memory registry keeps serving the room.
			logging.Warn(c.Request.Context(), "Mirror write failed on room creation",
				zap.String("roomId", roomID), zap.Error(err))
		}
	}

	logging.Info(c.Request.Context(), "Room created",
		zap.String("roomId", roomID), zap.String("userId", claims.Subject),
		zap.Bool("encryptionRequired", room.EncryptionRequired))

	c.JSON(http.StatusCreated, buildRoomResponse(room, claims.Subject, claims.Name, claims.Picture))
}

// JoinPreflight handles POST /rooms/:roomId/join. It confirms the room still
// exists before the client opens a streaming connection; it is not a state
// transition and attaches nobody.
func (h *Handler) JoinPreflight(c *gin.Context) {
	h.lookupRoom(c)
}

// Preview handles GET /rooms/:roomId/preview. Same shape as preflight; exists
// so a UI can render a join prompt without implying membership.
func (h *Handler) Preview(c *gin.Context) {
	h.lookupRoom(c)
}

func (h *Handler) lookupRoom(c *gin.Context) {
	claims := middleware.SessionClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	roomID := c.Param("roomId")
	if !hub.ValidRoomID(roomID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), mirrorBudget)
	defer cancel()
	room := h.hub.ResolveRoom(ctx, roomID)
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	c.JSON(http.StatusOK, buildRoomResponse(room, claims.Subject, claims.Name, claims.Picture))
}

func buildRoomResponse(room *hub.Room, userID, name, picture string) roomResponse {
	videoURL, titleID, initialTime := room.VideoState()
	return roomResponse{
		RoomID:             room.ID,
		EncryptionRequired: room.EncryptionRequired,
		VideoURL:           videoURL,
		TitleID:            titleID,
		InitialTime:        initialTime,
		User:               userInfo{ID: userID, Name: name, Picture: picture},
	}
}
