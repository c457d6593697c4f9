package hub

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/metrics"
	"go.uber.org/zap"
)

// roomIDPattern constrains room ids at every entry point.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

// ValidRoomID reports whether an id is acceptable for creation or lookup.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// RoomOptions carries optional creation-time metadata. EncryptionRequired is
// only honored when the room is created; the flag is immutable afterwards.
type RoomOptions struct {
	EncryptionRequired *bool
	VideoURL           string
	TitleID            string
	InitialTime        *float64
}

// Room is one named channel multiplexing chat, presence, and playback
// coordination among a small group of authenticated users. The registry owns
// the record; membership is mutated only through registry-mediated adds and
// removes so the deletion timer can be consulted in the same critical section.
type Room struct {
	ID                 string
	EncryptionRequired bool
	CreatedAt          time.Time
	hub                *Hub

	mu      sync.RWMutex
	members map[string]*Client // keyed by connection id

	// Advertised video metadata for new-joiner hydration. Updated only by
	// sync-state and episode-changed traffic; never authoritative playback
	// state.
	videoURL    string
	titleID     string
	initialTime float64
}

func newRoom(h *Hub, id string, encryptionRequired bool) *Room {
	return &Room{
		ID:                 id,
		EncryptionRequired: encryptionRequired,
		CreatedAt:          time.Now(),
		hub:                h,
		members:            make(map[string]*Client),
	}
}

// applyOptions overwrites optional metadata fields when provided.
// Caller must hold r.mu.
func (r *Room) applyOptionsLocked(opts RoomOptions) {
	if opts.VideoURL != "" {
		r.videoURL = opts.VideoURL
	}
	if opts.TitleID != "" {
		r.titleID = opts.TitleID
	}
	if opts.InitialTime != nil {
		r.initialTime = *opts.InitialTime
	}
}

// VideoState returns the advertised metadata snapshot.
func (r *Room) VideoState() (url, titleID string, initialTime float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.videoURL, r.titleID, r.initialTime
}

// MemberCount returns the number of live connections attached to the room.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// addClient enrolls a connection and broadcasts the resulting presence
// snapshot to every member, the newcomer included.
func (r *Room) addClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[c.connID] = c
	metrics.RoomMembers.WithLabelValues(r.ID).Set(float64(len(r.members)))
	r.broadcastPresenceLocked()
}

// removeClient drops a connection and broadcasts presence to the remaining
// members. It reports whether the room is now empty so the registry can arm
// the deletion timer. Removal is idempotent.
func (r *Room) removeClient(c *Client) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c.connID]; !ok {
		return false, len(r.members) == 0
	}
	delete(r.members, c.connID)

	if len(r.members) > 0 {
		metrics.RoomMembers.WithLabelValues(r.ID).Set(float64(len(r.members)))
	} else {
		metrics.RoomMembers.DeleteLabelValues(r.ID)
	}

	r.broadcastPresenceLocked()
	return true, len(r.members) == 0
}

// buildPresenceLocked snapshots membership. Duplicate user ids are allowed:
// one user may hold several connections and each appears as a participant.
// Caller must hold r.mu.
func (r *Room) buildPresenceLocked() presenceEvent {
	participants := make([]participantInfo, 0, len(r.members))
	users := make([]string, 0, len(r.members))
	avatars := make(map[string]string)

	for _, c := range r.members {
		participants = append(participants, participantInfo{
			ID:      c.UserID,
			Name:    c.Name,
			Picture: c.Picture,
		})
		users = append(users, c.Name)
		if c.Picture != "" {
			avatars[c.UserID] = c.Picture
		}
	}

	return presenceEvent{
		Type:               TypePresence,
		Participants:       participants,
		Users:              users,
		Avatars:            avatars,
		EncryptionRequired: r.EncryptionRequired,
	}
}

// broadcastPresenceLocked emits presence to every member. Presence is queued
// after the membership mutation that caused it, within the same critical
// section, so consecutive mutations are always separated by a snapshot.
func (r *Room) broadcastPresenceLocked() {
	data, err := json.Marshal(r.buildPresenceLocked())
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal presence", zap.String("room", r.ID), zap.Error(err))
		return
	}

	for _, c := range r.members {
		c.sendRaw(data)
	}
	metrics.RelayedFrames.WithLabelValues(TypePresence).Inc()
}

// broadcast marshals an envelope once and fans it out. When exclude is
// non-nil that connection is skipped (the usual everyone-but-sender scope).
func (r *Room) broadcast(msgType string, envelope any, exclude *Client) {
	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal broadcast envelope",
			zap.String("room", r.ID), zap.String("type", msgType), zap.Error(err))
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.members {
		if exclude != nil && c.connID == exclude.connID {
			continue
		}
		c.sendRaw(data)
	}
	metrics.RelayedFrames.WithLabelValues(msgType).Inc()
}

// updateVideoStateLocked records advertised playback for future joiners.
func (r *Room) setVideoState(url, titleID string, t float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if url != "" {
		r.videoURL = url
	}
	if titleID != "" {
		r.titleID = titleID
	}
	r.initialTime = t
}

// closeAll force-disconnects every member; used on hub shutdown.
func (r *Room) closeAll(reason string) {
	r.mu.Lock()
	targets := make([]*Client, 0, len(r.members))
	for _, c := range r.members {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	notice, _ := json.Marshal(systemEvent{Type: TypeSystem, Text: reason, TS: time.Now().UnixMilli()})
	for _, c := range targets {
		c.sendRaw(notice)
		c.terminate()
	}
}
