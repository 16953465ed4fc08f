// Copyright 2024-2026 Aiku AI

package intent

import (
	"context"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Transport abstracts the Matrix client-server API calls the intent layer
// needs. Each Transport instance acts as a single Matrix user; transport
// errors carry machine-readable error codes that callers can match with
// errors.Is against the mautrix sentinels (MForbidden, MUserInUse).
//
// Retries and timeouts are the transport's responsibility, not the intent
// layer's.
type Transport interface {
	Register(ctx context.Context, localpart string) error
	JoinRoom(ctx context.Context, roomID id.RoomID) error
	LeaveRoom(ctx context.Context, roomID id.RoomID) error
	InviteUser(ctx context.Context, roomID id.RoomID, target id.UserID) error
	KickUser(ctx context.Context, roomID id.RoomID, target id.UserID, reason string) error

	SendMessageEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, content any) (id.EventID, error)
	SendStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) (id.EventID, error)

	GetRoomState(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error)
	GetMembers(ctx context.Context, roomID id.RoomID) ([]*event.Event, error)
	GetPowerLevels(ctx context.Context, roomID id.RoomID) (*event.PowerLevelsEventContent, error)

	CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (id.RoomID, error)
	AddRoomAlias(ctx context.Context, alias id.RoomAlias, roomID id.RoomID) error
	RemoveRoomAlias(ctx context.Context, alias id.RoomAlias) error

	SetDisplayName(ctx context.Context, name string) error
	SetAvatarURL(ctx context.Context, url id.ContentURI) error
	SetPresence(ctx context.Context, presence event.Presence) error
	SetTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) error

	UploadMedia(ctx context.Context, data []byte, mimeType string) (id.ContentURI, error)
	DownloadMedia(ctx context.Context, uri id.ContentURI) ([]byte, error)
}

// TransportFactory creates a Transport acting as the given user.
type TransportFactory func(userID id.UserID) (Transport, error)

// HomeserverConfig is the shared connection configuration for all
// transports created by one bridge instance. Each per-identity transport
// composes this with its own user ID override instead of inheriting from a
// parent client.
type HomeserverConfig struct {
	// Address is the base URL of the homeserver's client-server API.
	Address string
	// Domain is the server name used in user IDs and aliases.
	Domain string
	// ASToken is the appservice token used to authenticate all requests.
	ASToken string
}

// NewTransportFactory returns a TransportFactory producing mautrix-backed
// transports that impersonate the given user via the appservice user_id
// query parameter.
func NewTransportFactory(cfg *HomeserverConfig) TransportFactory {
	return func(userID id.UserID) (Transport, error) {
		client, err := mautrix.NewClient(cfg.Address, userID, cfg.ASToken)
		if err != nil {
			return nil, err
		}
		client.SetAppServiceUserID = true
		return &matrixTransport{client: client}, nil
	}
}

// matrixTransport implements Transport on top of a mautrix.Client.
type matrixTransport struct {
	client *mautrix.Client
}

var _ Transport = (*matrixTransport)(nil)

func (mt *matrixTransport) Register(ctx context.Context, localpart string) error {
	_, _, err := mt.client.Register(ctx, &mautrix.ReqRegister{
		Username:     localpart,
		Type:         mautrix.AuthTypeAppservice,
		InhibitLogin: true,
	})
	return err
}

func (mt *matrixTransport) JoinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := mt.client.JoinRoomByID(ctx, roomID)
	return err
}

func (mt *matrixTransport) LeaveRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := mt.client.LeaveRoom(ctx, roomID)
	return err
}

func (mt *matrixTransport) InviteUser(ctx context.Context, roomID id.RoomID, target id.UserID) error {
	_, err := mt.client.InviteUser(ctx, roomID, &mautrix.ReqInviteUser{UserID: target})
	return err
}

func (mt *matrixTransport) KickUser(ctx context.Context, roomID id.RoomID, target id.UserID, reason string) error {
	_, err := mt.client.KickUser(ctx, roomID, &mautrix.ReqKickUser{UserID: target, Reason: reason})
	return err
}

func (mt *matrixTransport) SendMessageEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, content any) (id.EventID, error) {
	resp, err := mt.client.SendMessageEvent(ctx, roomID, evtType, content)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (mt *matrixTransport) SendStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) (id.EventID, error) {
	resp, err := mt.client.SendStateEvent(ctx, roomID, evtType, stateKey, content)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (mt *matrixTransport) GetRoomState(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error) {
	return mt.client.State(ctx, roomID)
}

func (mt *matrixTransport) GetMembers(ctx context.Context, roomID id.RoomID) ([]*event.Event, error) {
	resp, err := mt.client.Members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return resp.Chunk, nil
}

func (mt *matrixTransport) GetPowerLevels(ctx context.Context, roomID id.RoomID) (*event.PowerLevelsEventContent, error) {
	var levels event.PowerLevelsEventContent
	err := mt.client.StateEvent(ctx, roomID, event.StatePowerLevels, "", &levels)
	if err != nil {
		return nil, err
	}
	return &levels, nil
}

func (mt *matrixTransport) CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (id.RoomID, error) {
	resp, err := mt.client.CreateRoom(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

func (mt *matrixTransport) AddRoomAlias(ctx context.Context, alias id.RoomAlias, roomID id.RoomID) error {
	_, err := mt.client.CreateAlias(ctx, alias, roomID)
	return err
}

func (mt *matrixTransport) RemoveRoomAlias(ctx context.Context, alias id.RoomAlias) error {
	_, err := mt.client.DeleteAlias(ctx, alias)
	return err
}

func (mt *matrixTransport) SetDisplayName(ctx context.Context, name string) error {
	return mt.client.SetDisplayName(ctx, name)
}

func (mt *matrixTransport) SetAvatarURL(ctx context.Context, url id.ContentURI) error {
	return mt.client.SetAvatarURL(ctx, url)
}

func (mt *matrixTransport) SetPresence(ctx context.Context, presence event.Presence) error {
	return mt.client.SetPresence(ctx, mautrix.ReqPresence{Presence: presence})
}

func (mt *matrixTransport) SetTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) error {
	_, err := mt.client.UserTyping(ctx, roomID, typing, timeout)
	return err
}

func (mt *matrixTransport) UploadMedia(ctx context.Context, data []byte, mimeType string) (id.ContentURI, error) {
	resp, err := mt.client.UploadBytes(ctx, data, mimeType)
	if err != nil {
		return id.ContentURI{}, err
	}
	return resp.ContentURI, nil
}

func (mt *matrixTransport) DownloadMedia(ctx context.Context, uri id.ContentURI) ([]byte, error) {
	return mt.client.DownloadBytes(ctx, uri)
}
