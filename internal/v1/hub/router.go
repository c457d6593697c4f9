package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/metrics"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// plaintextOnlyTypes carry user content in the clear and are refused in
// encrypted rooms so a misbehaving client cannot leak a body the E2EE
// contract protects.
var plaintextOnlyTypes = set.New(TypeState, TypeChat, TypeTyping)

// controlTypes must deliver even while the E2EE key graph is incomplete
// (a fresh joiner has no peer keys yet). They carry no user-authored content.
var controlTypes = set.New(TypeSystem, TypeEpisodeChanged, TypeSyncRequest, TypeSyncState)

// route applies the message-type policy to one decoded inbound frame and
// produces the outbound fan-out. Policy violations are dropped silently:
// surfacing them would aid attackers and confuse legitimate clients during
// transient key-exchange races.
func (r *Room) route(ctx context.Context, sender *Client, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		metrics.DroppedFrames.WithLabelValues("malformed").Inc()
		return
	}

	now := time.Now().UnixMilli()

	if r.EncryptionRequired && plaintextOnlyTypes.Has(f.Type) {
		metrics.DroppedFrames.WithLabelValues("policy").Inc()
		logging.GetLogger().Debug("Dropping plaintext frame in encrypted room",
			zap.String("room", r.ID), zap.String("type", f.Type), zap.String("userId", sender.UserID))
		return
	}

	switch f.Type {
	case TypePing:
		// Answered directly; never fanned out.
		sender.sendJSON(pongEvent{Type: TypePong, TS: now})

	case TypePong:
		// Liveness bookkeeping happened in the reader; nothing to route.

	case TypeKeyExchange:
		if isBlank(f.PublicKey) {
			metrics.DroppedFrames.WithLabelValues("missing_field").Inc()
			return
		}
		r.broadcast(f.Type, keyExchangeEvent{
			Type:      f.Type,
			PublicKey: f.PublicKey,
			Curve:     f.Curve,
			From:      sender.Name,
			FromID:    sender.UserID,
		}, sender)

	case TypeEncrypted:
		if isBlank(f.Ciphertext) || isBlank(f.IV) {
			metrics.DroppedFrames.WithLabelValues("missing_field").Inc()
			return
		}
		// Opaque passthrough: ciphertext, iv, tag, salt travel byte-identical
		// and nothing is stored. recipientId is not enforced; only the named
		// recipient can decrypt.
		r.broadcast(f.Type, encryptedEvent{
			Type:        f.Type,
			Ciphertext:  f.Ciphertext,
			IV:          f.IV,
			Tag:         f.Tag,
			Salt:        f.Salt,
			Alg:         f.Alg,
			From:        sender.Name,
			FromID:      sender.UserID,
			TS:          f.timestamp(now),
			RecipientID: f.RecipientID,
		}, sender)

	case TypeSystem:
		if isBlank(f.Text) {
			metrics.DroppedFrames.WithLabelValues("missing_field").Inc()
			return
		}
		r.broadcast(f.Type, systemEvent{
			Type: f.Type,
			Text: f.Text,
			TS:   f.timestamp(now),
			URL:  f.URL,
		}, sender)

	case TypeEpisodeChanged:
		if isBlank(f.URL) {
			metrics.DroppedFrames.WithLabelValues("missing_field").Inc()
			return
		}
		r.setVideoState(f.URL, f.Title, 0)
		// seq is forwarded verbatim; dedupe is a client concern.
		r.broadcast(f.Type, episodeChangedEvent{
			Type:   f.Type,
			URL:    f.URL,
			TS:     f.timestamp(now),
			Seq:    f.Seq,
			Title:  f.Title,
			From:   sender.Name,
			FromID: sender.UserID,
		}, sender)

	case TypeSyncRequest:
		r.broadcast(f.Type, syncRequestEvent{
			Type:   f.Type,
			From:   sender.Name,
			FromID: sender.UserID,
			TS:     f.timestamp(now),
		}, sender)

	case TypeSyncState:
		r.setVideoState(f.URL, "", f.Time)
		r.hub.mirrorVideoState(r.ID, f.URL, f.Time)
		r.broadcast(f.Type, syncStateEvent{
			Type:   f.Type,
			Time:   f.Time,
			Paused: f.Paused,
			URL:    f.URL,
			From:   sender.Name,
			FromID: sender.UserID,
			TS:     f.timestamp(now),
		}, sender)

	case TypeState:
		if len(f.Payload) == 0 {
			metrics.DroppedFrames.WithLabelValues("missing_field").Inc()
			return
		}
		r.broadcast(f.Type, stateEvent{Type: f.Type, Payload: f.Payload}, sender)

	case TypeChat:
		if isBlank(f.Text) {
			metrics.DroppedFrames.WithLabelValues("missing_field").Inc()
			return
		}
		// Chat echoes to the sender: the server echo is the sender's
		// delivery confirmation.
		r.broadcast(f.Type, chatEvent{
			Type:   f.Type,
			Text:   f.Text,
			From:   sender.Name,
			FromID: sender.UserID,
			Avatar: sender.Picture,
			TS:     f.timestamp(now),
		}, nil)

	case TypeTyping:
		r.broadcast(f.Type, typingEvent{
			Type:   f.Type,
			From:   sender.Name,
			FromID: sender.UserID,
			Active: f.Active,
			TS:     f.timestamp(now),
		}, sender)

	default:
		metrics.DroppedFrames.WithLabelValues("unknown_type").Inc()
		logging.GetLogger().Debug("Unknown message type received",
			zap.String("room", r.ID), zap.String("type", f.Type))
	}
}
