// Package hub implements the server-side room hub: it authenticates
// streaming connections, maintains rooms and presence, relays typed JSON
// frames between peers under a per-room policy, enforces liveness, and owns
// the empty-grace room lifecycle. For end-to-end-encrypted traffic the hub is
// a blind relay and never sees plaintext.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/khanmassab/flixers/internal/v1/auth"
	"github.com/khanmassab/flixers/internal/v1/config"
	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/metrics"
	"github.com/khanmassab/flixers/internal/v1/mirror"
	"go.uber.org/zap"
)

// mirrorTimeout bounds every best-effort mirror round-trip.
const mirrorTimeout = 5 * time.Second

// MetadataMirror is the optional shared store for durable room metadata.
// Implemented by *mirror.Store; all operations are best-effort.
type MetadataMirror interface {
	SaveRoom(ctx context.Context, meta mirror.RoomMeta) error
	LoadRoom(ctx context.Context, roomID string) (*mirror.RoomMeta, error)
	UpdateVideoState(ctx context.Context, roomID, videoURL, titleID string, videoTime float64) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// Options tune the hub. Zero values fall back to the config defaults.
type Options struct {
	EmptyGrace                time.Duration
	PingInterval              time.Duration
	ActivityTimeout           time.Duration
	DefaultEncryptionRequired bool
	AllowedOrigins            []string
	DevMode                   bool
}

// Hub is the room registry and the single source of truth for membership.
// Its mutex serializes ensure, lookup+add, lookup+remove, and deletion-timer
// transitions so no connection is delivered to a room after deletion and no
// deletion proceeds while a join is in flight.
type Hub struct {
	mu                  sync.Mutex
	rooms               map[string]*Room
	pendingRoomCleanups map[string]*time.Timer // at most one per room, only while empty

	validator auth.TokenValidator
	mirror    MetadataMirror

	emptyGrace                time.Duration
	pingInterval              time.Duration
	activityTimeout           time.Duration
	defaultEncryptionRequired bool
	allowedOrigins            []string
	devMode                   bool

	// onRoomDeleted is invoked after the registry removes an expired room.
	onRoomDeleted func(roomID string)
}

// NewHub creates a hub with the given verifier and optional metadata mirror.
func NewHub(validator auth.TokenValidator, store MetadataMirror, opts Options) *Hub {
	if opts.EmptyGrace <= 0 {
		opts.EmptyGrace = config.DefaultRoomEmptyGrace
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = config.DefaultPingInterval
	}
	if opts.ActivityTimeout <= 0 {
		opts.ActivityTimeout = config.DefaultActivityTimeout
	}

	return &Hub{
		rooms:                     make(map[string]*Room),
		pendingRoomCleanups:       make(map[string]*time.Timer),
		validator:                 validator,
		mirror:                    store,
		emptyGrace:                opts.EmptyGrace,
		pingInterval:              opts.PingInterval,
		activityTimeout:           opts.ActivityTimeout,
		defaultEncryptionRequired: opts.DefaultEncryptionRequired,
		allowedOrigins:            opts.AllowedOrigins,
		devMode:                   opts.DevMode,
	}
}

// SetRoomDeletedHook registers a callback fired after expiry deletion.
func (h *Hub) SetRoomDeletedHook(fn func(roomID string)) {
	h.onRoomDeleted = fn
}

// EnsureRoom returns the existing room or creates one. encryption_required is
// taken from opts only on creation; other optional fields overwrite whenever
// provided. An empty room always leaves here with a fresh deletion timer, so
// a room created over the control plane and never joined cannot leak in the
// registry.
func (h *Hub) EnsureRoom(roomID string, opts RoomOptions) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.ensureRoomLocked(roomID, opts)
	if r.MemberCount() == 0 {
		h.scheduleDeletionLocked(roomID)
	}
	return r
}

func (h *Hub) ensureRoomLocked(roomID string, opts RoomOptions) *Room {
	if timer, ok := h.pendingRoomCleanups[roomID]; ok {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
		logging.Info(context.Background(), "Cancelled pending room deletion", zap.String("roomId", roomID))
	}

	r, ok := h.rooms[roomID]
	if !ok {
		enc := h.defaultEncryptionRequired
		if opts.EncryptionRequired != nil {
			enc = *opts.EncryptionRequired
		}
		r = newRoom(h, roomID, enc)
		h.rooms[roomID] = r
		metrics.ActiveRooms.Inc()
		logging.Info(context.Background(), "Created room",
			zap.String("roomId", roomID), zap.Bool("encryptionRequired", enc))
	}

	r.mu.Lock()
	r.applyOptionsLocked(opts)
	r.mu.Unlock()
	return r
}

// LookupRoom returns the room record or nil.
func (h *Hub) LookupRoom(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

// DropRoom unconditionally removes the record and any pending timer.
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropRoomLocked(roomID)
}

func (h *Hub) dropRoomLocked(roomID string) {
	if timer, ok := h.pendingRoomCleanups[roomID]; ok {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}
	if _, ok := h.rooms[roomID]; ok {
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomMembers.DeleteLabelValues(roomID)
	}
}

// scheduleDeletion arms the empty-grace timer, replacing any existing one.
// When it fires the registry re-checks emptiness before deleting, so a join
// racing the expiry always wins.
func (h *Hub) scheduleDeletion(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduleDeletionLocked(roomID)
}

func (h *Hub) scheduleDeletionLocked(roomID string) {
	if existing, ok := h.pendingRoomCleanups[roomID]; ok {
		existing.Stop()
	}

	timer := time.AfterFunc(h.emptyGrace, func() {
		h.mu.Lock()
		r, ok := h.rooms[roomID]
		if !ok || r.MemberCount() > 0 {
			delete(h.pendingRoomCleanups, roomID)
			h.mu.Unlock()
			return
		}
		h.dropRoomLocked(roomID)
		h.mu.Unlock()

		metrics.RoomsDeleted.Inc()
		logging.Info(context.Background(), "Deleted room after empty-grace period", zap.String("roomId", roomID))

		if h.mirror != nil {
			ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			defer cancel()
			_ = h.mirror.DeleteRoom(ctx, roomID)
		}
		if h.onRoomDeleted != nil {
			h.onRoomDeleted(roomID)
		}
	})

	h.pendingRoomCleanups[roomID] = timer
	logging.Info(context.Background(), "Armed room deletion timer",
		zap.String("roomId", roomID), zap.Duration("grace", h.emptyGrace))
}

// attach enrolls a connection into its room. Ensure, timer cancellation, and
// the membership add happen in one registry critical section so a join can
// never interleave with a deletion.
func (h *Hub) attach(roomID string, client *Client, seed RoomOptions) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.ensureRoomLocked(roomID, seed)
	client.room = r
	r.addClient(client)
	return r
}

// detach removes a connection from its room, emits presence, and arms the
// deletion timer when the room emptied. Idempotent.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	removed, empty := c.room.removeClient(c)
	if removed && empty {
		h.scheduleDeletionLocked(c.room.ID)
	}
	h.mu.Unlock()

	if removed {
		logging.Info(context.Background(), "Connection detached",
			zap.String("roomId", c.room.ID), zap.String("userId", c.UserID), zap.String("connId", c.connID))
	}
}

// mirrorVideoState opportunistically records advertised playback state.
// Mirror failure never prevents the broadcast that follows.
func (h *Hub) mirrorVideoState(roomID, videoURL string, videoTime float64) {
	if h.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		_ = h.mirror.UpdateVideoState(ctx, roomID, videoURL, "", videoTime)
	}()
}

// mirrorSeed fetches creation options from the mirror when the registry has
// no record yet. Best-effort: a miss or slow mirror yields empty options.
func (h *Hub) mirrorSeed(ctx context.Context, roomID string) RoomOptions {
	if h.mirror == nil || h.LookupRoom(roomID) != nil {
		return RoomOptions{}
	}

	mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	meta, err := h.mirror.LoadRoom(mctx, roomID)
	if err != nil {
		return RoomOptions{}
	}

	enc := meta.EncryptionRequired
	initial := meta.InitialTime
	return RoomOptions{
		EncryptionRequired: &enc,
		VideoURL:           meta.VideoURL,
		TitleID:            meta.TitleID,
		InitialTime:        &initial,
	}
}

// ResolveRoom returns the room for a lookup, consulting the mirror when the
// registry has no record so metadata created by another instance (or before a
// restart) is honored. Returns nil when the room is unknown everywhere.
func (h *Hub) ResolveRoom(ctx context.Context, roomID string) *Room {
	if r := h.LookupRoom(roomID); r != nil {
		return r
	}
	if h.mirror == nil {
		return nil
	}

	mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	meta, err := h.mirror.LoadRoom(mctx, roomID)
	if err != nil {
		return nil
	}

	enc := meta.EncryptionRequired
	initial := meta.InitialTime
	return h.EnsureRoom(roomID, RoomOptions{
		EncryptionRequired: &enc,
		VideoURL:           meta.VideoURL,
		TitleID:            meta.TitleID,
		InitialTime:        &initial,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeWs authenticates the request and upgrades it to a streaming
// connection. Missing or invalid inputs abort before the upgrade with a bare
// status and no payload.
func (h *Hub) ServeWs(c *gin.Context) {
	roomID := c.Query("roomId")
	token := c.Query("token")

	if !ValidRoomID(roomID) || token == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	if !h.devMode {
		if err := auth.ValidateOrigin(c.Request, h.allowedOrigins); err != nil {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
	}

	up := upgrader
	up.CheckOrigin = func(r *http.Request) bool {
		return h.devMode || auth.ValidateOrigin(r, h.allowedOrigins) == nil
	}
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.HandleConnection(conn, roomID, claims)
}

// HandleConnection enrolls an established connection into its room and starts
// the per-connection goroutines. Split from ServeWs so tests can drive it
// with a mock connection.
func (h *Hub) HandleConnection(conn wsConnection, roomID string, claims *auth.SessionClaims) *Client {
	ctx := context.Background()

	client := &Client{
		conn:            conn,
		hub:             h,
		connID:          uuid.New().String(),
		UserID:          claims.Subject,
		Name:            claims.Name,
		Picture:         claims.Picture,
		pingInterval:    h.pingInterval,
		activityTimeout: h.activityTimeout,
		lastActivity:    time.Now(),
		send:            make(chan []byte, sendBufferSize),
		pingCh:          make(chan struct{}, 1),
		done:            make(chan struct{}),
	}

	// First authenticated connection creates the room; metadata written by
	// another instance (or before a restart) seeds it.
	h.attach(roomID, client, h.mirrorSeed(ctx, roomID))
	metrics.IncConnection()
	logging.Info(ctx, "Connection attached",
		zap.String("roomId", roomID), zap.String("userId", client.UserID), zap.String("connId", client.connID))

	go client.writePump()
	go client.heartbeat()
	go client.readPump()

	return client
}

// Shutdown cancels all deletion timers and force-closes every room.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down hub - closing all active rooms")

	h.mu.Lock()
	for roomID, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.closeAll("Server shutting down")
	}

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(rooms)))
	return nil
}
