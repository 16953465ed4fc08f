// Copyright 2024-2026 Aiku AI

package intent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Intent is a per-identity session handle. All room and message operations
// go through EnsureJoined (and for events, the power-level guard) first, so
// a single call is enough regardless of the identity's current state.
//
// Handles are safe for concurrent use; the registration flag is guarded by
// a per-handle mutex so overlapping calls can't double-register.
type Intent struct {
	UserID    id.UserID
	Localpart string
	Domain    string

	mgr       *Manager
	transport Transport
	log       zerolog.Logger

	regLock    sync.Mutex
	registered bool
	isBot      bool
}

// IsRegistered reports whether the identity has been claimed on the
// homeserver. The flag only ever goes from false to true.
func (in *Intent) IsRegistered() bool {
	in.regLock.Lock()
	defer in.regLock.Unlock()
	return in.registered
}

// ensureRegistered registers the identity's localpart if that hasn't been
// done yet. A "user in use" response counts as success. Other failures are
// logged and swallowed unless StrictRegistration is set; either way the
// handle is marked registered so subsequent actions aren't blocked on a
// flaky registration endpoint.
func (in *Intent) ensureRegistered(ctx context.Context) error {
	in.regLock.Lock()
	defer in.regLock.Unlock()
	if in.registered {
		return nil
	}
	err := in.transport.Register(ctx, in.Localpart)
	if err != nil && !errors.Is(err, mautrix.MUserInUse) {
		if in.mgr.StrictRegistration {
			return fmt.Errorf("failed to register %s: %w", in.UserID, err)
		}
		in.log.Error().Err(err).Msg("Failed to register user, marking as registered anyway")
	}
	in.registered = true
	return nil
}

// EnsureJoined makes sure the identity is in the room. It is a no-op when
// the state store already says joined, unless force is set. On a forbidden
// join the bridge bot invites the identity and the join is retried once;
// any further failure is returned as a *JoinError.
func (in *Intent) EnsureJoined(ctx context.Context, roomID id.RoomID, force bool) error {
	if !force && in.mgr.store.IsJoined(roomID, in.UserID) {
		return nil
	}
	if err := in.ensureRegistered(ctx); err != nil {
		return err
	}
	err := in.transport.JoinRoom(ctx, roomID)
	if err == nil {
		in.mgr.store.SetJoined(roomID, in.UserID)
		return nil
	}
	if !errors.Is(err, mautrix.MForbidden) || in.isBot {
		return &JoinError{UserID: in.UserID, RoomID: roomID, Err: err}
	}
	in.log.Debug().Str("room_id", roomID.String()).
		Msg("Join forbidden, retrying via bot invite")
	if err = in.mgr.bot.transport.InviteUser(ctx, roomID, in.UserID); err != nil {
		return &JoinError{UserID: in.UserID, RoomID: roomID, Err: err}
	}
	if err = in.transport.JoinRoom(ctx, roomID); err != nil {
		return &JoinError{UserID: in.UserID, RoomID: roomID, Err: err}
	}
	in.mgr.store.SetJoined(roomID, in.UserID)
	return nil
}

// JoinRoom joins the room, bypassing the membership cache.
func (in *Intent) JoinRoom(ctx context.Context, roomID id.RoomID) error {
	return in.EnsureJoined(ctx, roomID, true)
}

// LeaveRoom leaves the room. The membership cache is updated before the
// remote call, so a failed leave leaves the cache saying "not joined" while
// the homeserver still has the user in the room. That divergence is
// intentional: the next action re-joins through EnsureJoined.
func (in *Intent) LeaveRoom(ctx context.Context, roomID id.RoomID) error {
	in.mgr.store.SetLeft(roomID, in.UserID)
	return in.transport.LeaveRoom(ctx, roomID)
}

// Invite invites the target user to the room. A forbidden response is
// swallowed (invites are best-effort); other failures are returned as an
// *InviteError.
func (in *Intent) Invite(ctx context.Context, roomID id.RoomID, target id.UserID) error {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return err
	}
	err := in.transport.InviteUser(ctx, roomID, target)
	if err == nil {
		in.mgr.store.SetInvited(roomID, target)
		return nil
	}
	if errors.Is(err, mautrix.MForbidden) {
		in.log.Debug().Err(err).
			Str("room_id", roomID.String()).
			Str("target", target.String()).
			Msg("Invite forbidden, ignoring")
		return nil
	}
	return &InviteError{Target: target, RoomID: roomID, Err: err}
}

// Kick removes the target user from the room.
func (in *Intent) Kick(ctx context.Context, roomID id.RoomID, target id.UserID, reason string) error {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return err
	}
	return in.transport.KickUser(ctx, roomID, target, reason)
}

// ensurePowerLevel fetches and caches the room's power levels on first use,
// then checks whether the identity may send the given event type. The check
// result is currently advisory only: an insufficient level is logged and
// the send proceeds anyway, matching the original bridge. Enforcement is a
// known gap.
func (in *Intent) ensurePowerLevel(ctx context.Context, roomID id.RoomID, evtType event.Type) error {
	if !in.mgr.store.HasPowerLevelData(roomID) {
		if _, err := in.GetPowerLevels(ctx, roomID); err != nil {
			return err
		}
	}
	if !in.mgr.store.HasPowerLevel(roomID, in.UserID, evtType) {
		in.log.Debug().
			Str("room_id", roomID.String()).
			Str("event_type", evtType.Type).
			Msg("Power level appears insufficient, sending anyway")
	}
	return nil
}

// GetPowerLevels fetches the room's power levels and updates the cache.
func (in *Intent) GetPowerLevels(ctx context.Context, roomID id.RoomID) (*event.PowerLevelsEventContent, error) {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return nil, err
	}
	levels, err := in.transport.GetPowerLevels(ctx, roomID)
	if err != nil {
		return nil, err
	}
	in.mgr.store.SetPowerLevels(roomID, levels)
	return levels, nil
}

// SetPowerLevels replaces the room's power levels and updates the cache.
func (in *Intent) SetPowerLevels(ctx context.Context, roomID id.RoomID, levels *event.PowerLevelsEventContent) (id.EventID, error) {
	evtID, err := in.SendStateEvent(ctx, roomID, event.StatePowerLevels, "", levels)
	if err != nil {
		return "", err
	}
	in.mgr.store.SetPowerLevels(roomID, levels)
	return evtID, nil
}

// SendEvent sends a message event after the join and power-level guards.
func (in *Intent) SendEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, content any) (id.EventID, error) {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return "", err
	}
	if err := in.ensurePowerLevel(ctx, roomID, evtType); err != nil {
		return "", err
	}
	return in.transport.SendMessageEvent(ctx, roomID, evtType, content)
}

// SendStateEvent sends a state event after the join and power-level guards.
func (in *Intent) SendStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) (id.EventID, error) {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return "", err
	}
	if err := in.ensurePowerLevel(ctx, roomID, evtType); err != nil {
		return "", err
	}
	return in.transport.SendStateEvent(ctx, roomID, evtType, stateKey, content)
}

// SendMessage sends an m.room.message event.
func (in *Intent) SendMessage(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) (id.EventID, error) {
	return in.SendEvent(ctx, roomID, event.EventMessage, content)
}

func makeTextContent(msgType event.MessageType, text, html string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: msgType,
		Body:    text,
	}
	if html != "" {
		if content.Body == "" {
			content.Body = html
		}
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	return content
}

// SendText sends a plain text message, with an optional HTML variant.
func (in *Intent) SendText(ctx context.Context, roomID id.RoomID, text, html string) (id.EventID, error) {
	return in.SendMessage(ctx, roomID, makeTextContent(event.MsgText, text, html))
}

// SendNotice sends an m.notice message, with an optional HTML variant.
func (in *Intent) SendNotice(ctx context.Context, roomID id.RoomID, text, html string) (id.EventID, error) {
	return in.SendMessage(ctx, roomID, makeTextContent(event.MsgNotice, text, html))
}

// SendEmote sends an m.emote message, with an optional HTML variant.
func (in *Intent) SendEmote(ctx context.Context, roomID id.RoomID, text, html string) (id.EventID, error) {
	return in.SendMessage(ctx, roomID, makeTextContent(event.MsgEmote, text, html))
}

// SendImage sends an m.image message referencing already-uploaded media.
func (in *Intent) SendImage(ctx context.Context, roomID id.RoomID, url id.ContentURI, body string, info *event.FileInfo) (id.EventID, error) {
	return in.sendFileMessage(ctx, roomID, event.MsgImage, url, body, info)
}

// SendFile sends an m.file message referencing already-uploaded media.
func (in *Intent) SendFile(ctx context.Context, roomID id.RoomID, url id.ContentURI, body string, info *event.FileInfo) (id.EventID, error) {
	return in.sendFileMessage(ctx, roomID, event.MsgFile, url, body, info)
}

func (in *Intent) sendFileMessage(ctx context.Context, roomID id.RoomID, msgType event.MessageType, url id.ContentURI, body string, info *event.FileInfo) (id.EventID, error) {
	if body == "" {
		body = "Uploaded file"
	}
	return in.SendMessage(ctx, roomID, &event.MessageEventContent{
		MsgType: msgType,
		Body:    body,
		URL:     url.CUString(),
		Info:    info,
	})
}

// ErrorAndLeave sends a notice to the room and then leaves it.
func (in *Intent) ErrorAndLeave(ctx context.Context, roomID id.RoomID, text, html string) error {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return err
	}
	if _, err := in.SendNotice(ctx, roomID, text, html); err != nil {
		return err
	}
	return in.LeaveRoom(ctx, roomID)
}

// CreateRoom creates a room as this identity.
func (in *Intent) CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (id.RoomID, error) {
	if err := in.ensureRegistered(ctx); err != nil {
		return "", err
	}
	return in.transport.CreateRoom(ctx, req)
}

// GetRoomState fetches the full room state.
func (in *Intent) GetRoomState(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error) {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return nil, err
	}
	return in.transport.GetRoomState(ctx, roomID)
}

// GetRoomMembers returns the user IDs of room members whose membership is
// one of the allowed values. With no values given, joined members are
// returned.
func (in *Intent) GetRoomMembers(ctx context.Context, roomID id.RoomID, allowedMemberships ...event.Membership) ([]id.UserID, error) {
	if len(allowedMemberships) == 0 {
		allowedMemberships = []event.Membership{event.MembershipJoin}
	}
	members, err := in.transport.GetMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var userIDs []id.UserID
	for _, evt := range members {
		if evt.StateKey == nil {
			continue
		}
		if evt.Content.Parsed == nil {
			_ = evt.Content.ParseRaw(event.StateMember)
		}
		content := evt.Content.AsMember()
		if content == nil {
			continue
		}
		for _, allowed := range allowedMemberships {
			if content.Membership == allowed {
				userIDs = append(userIDs, id.UserID(*evt.StateKey))
				break
			}
		}
	}
	return userIDs, nil
}

// SetRoomName sets the room's name.
func (in *Intent) SetRoomName(ctx context.Context, roomID id.RoomID, name string) (id.EventID, error) {
	return in.SendStateEvent(ctx, roomID, event.StateRoomName, "", &event.RoomNameEventContent{Name: name})
}

// SetRoomTopic sets the room's topic.
func (in *Intent) SetRoomTopic(ctx context.Context, roomID id.RoomID, topic string) (id.EventID, error) {
	return in.SendStateEvent(ctx, roomID, event.StateTopic, "", &event.TopicEventContent{Topic: topic})
}

// SetRoomAvatar sets the room's avatar.
func (in *Intent) SetRoomAvatar(ctx context.Context, roomID id.RoomID, url id.ContentURI) (id.EventID, error) {
	return in.SendStateEvent(ctx, roomID, event.StateRoomAvatar, "", &event.RoomAvatarEventContent{URL: url.CUString()})
}

// AddRoomAlias publishes #localpart:domain pointing at the room, using the
// identity's own domain.
func (in *Intent) AddRoomAlias(ctx context.Context, roomID id.RoomID, localpart string) error {
	if err := in.ensureRegistered(ctx); err != nil {
		return err
	}
	return in.transport.AddRoomAlias(ctx, id.NewRoomAlias(localpart, in.Domain), roomID)
}

// RemoveRoomAlias deletes #localpart:domain from the room directory.
func (in *Intent) RemoveRoomAlias(ctx context.Context, localpart string) error {
	if err := in.ensureRegistered(ctx); err != nil {
		return err
	}
	return in.transport.RemoveRoomAlias(ctx, id.NewRoomAlias(localpart, in.Domain))
}

// SetDisplayName sets the identity's global display name.
func (in *Intent) SetDisplayName(ctx context.Context, name string) error {
	if err := in.ensureRegistered(ctx); err != nil {
		return err
	}
	return in.transport.SetDisplayName(ctx, name)
}

// SetAvatarURL sets the identity's global avatar.
func (in *Intent) SetAvatarURL(ctx context.Context, url id.ContentURI) error {
	if err := in.ensureRegistered(ctx); err != nil {
		return err
	}
	return in.transport.SetAvatarURL(ctx, url)
}

// SetPresence sets the identity's presence status.
func (in *Intent) SetPresence(ctx context.Context, presence event.Presence) error {
	if err := in.ensureRegistered(ctx); err != nil {
		return err
	}
	return in.transport.SetPresence(ctx, presence)
}

// SetTyping sends a typing notification to the room.
func (in *Intent) SetTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) error {
	if err := in.EnsureJoined(ctx, roomID, false); err != nil {
		return err
	}
	return in.transport.SetTyping(ctx, roomID, typing, timeout)
}

// UploadMedia uploads data to the homeserver's media repository.
func (in *Intent) UploadMedia(ctx context.Context, data []byte, mimeType string) (id.ContentURI, error) {
	if err := in.ensureRegistered(ctx); err != nil {
		return id.ContentURI{}, err
	}
	return in.transport.UploadMedia(ctx, data, mimeType)
}

// DownloadMedia downloads media from the homeserver's media repository.
func (in *Intent) DownloadMedia(ctx context.Context, uri id.ContentURI) ([]byte, error) {
	if err := in.ensureRegistered(ctx); err != nil {
		return nil, err
	}
	return in.transport.DownloadMedia(ctx, uri)
}
