// Copyright 2024-2026 Aiku AI

package intent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type inviteCall struct {
	RoomID id.RoomID
	Target id.UserID
}

type sendCall struct {
	RoomID   id.RoomID
	Type     event.Type
	StateKey string
	Content  any
}

// fakeTransport records calls and returns configurable errors. Error queues
// (joinErrs) are popped one per call so tests can script
// fail-then-succeed sequences.
type fakeTransport struct {
	mu sync.Mutex

	registerCalls []string
	joinCalls     []id.RoomID
	leaveCalls    []id.RoomID
	inviteCalls   []inviteCall
	sendCalls     []sendCall
	stateCalls    []sendCall
	plFetches     []id.RoomID

	registerErr error
	joinErrs    []error
	leaveErr    error
	inviteErr   error
	sendErr     error
	plErr       error

	powerLevels *event.PowerLevelsEventContent
}

var _ Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{powerLevels: &event.PowerLevelsEventContent{}}
}

func (ft *fakeTransport) Register(_ context.Context, localpart string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.registerCalls = append(ft.registerCalls, localpart)
	return ft.registerErr
}

func (ft *fakeTransport) JoinRoom(_ context.Context, roomID id.RoomID) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.joinCalls = append(ft.joinCalls, roomID)
	if len(ft.joinErrs) > 0 {
		err := ft.joinErrs[0]
		ft.joinErrs = ft.joinErrs[1:]
		return err
	}
	return nil
}

func (ft *fakeTransport) LeaveRoom(_ context.Context, roomID id.RoomID) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.leaveCalls = append(ft.leaveCalls, roomID)
	return ft.leaveErr
}

func (ft *fakeTransport) InviteUser(_ context.Context, roomID id.RoomID, target id.UserID) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.inviteCalls = append(ft.inviteCalls, inviteCall{roomID, target})
	return ft.inviteErr
}

func (ft *fakeTransport) KickUser(context.Context, id.RoomID, id.UserID, string) error {
	return nil
}

func (ft *fakeTransport) SendMessageEvent(_ context.Context, roomID id.RoomID, evtType event.Type, content any) (id.EventID, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.sendCalls = append(ft.sendCalls, sendCall{RoomID: roomID, Type: evtType, Content: content})
	if ft.sendErr != nil {
		return "", ft.sendErr
	}
	return "$fake-event", nil
}

func (ft *fakeTransport) SendStateEvent(_ context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) (id.EventID, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.stateCalls = append(ft.stateCalls, sendCall{RoomID: roomID, Type: evtType, StateKey: stateKey, Content: content})
	if ft.sendErr != nil {
		return "", ft.sendErr
	}
	return "$fake-state-event", nil
}

func (ft *fakeTransport) GetRoomState(context.Context, id.RoomID) (mautrix.RoomStateMap, error) {
	return nil, nil
}

func (ft *fakeTransport) GetMembers(context.Context, id.RoomID) ([]*event.Event, error) {
	return nil, nil
}

func (ft *fakeTransport) GetPowerLevels(_ context.Context, roomID id.RoomID) (*event.PowerLevelsEventContent, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.plFetches = append(ft.plFetches, roomID)
	if ft.plErr != nil {
		return nil, ft.plErr
	}
	return ft.powerLevels, nil
}

func (ft *fakeTransport) CreateRoom(context.Context, *mautrix.ReqCreateRoom) (id.RoomID, error) {
	return "!new-room:example.com", nil
}

func (ft *fakeTransport) AddRoomAlias(context.Context, id.RoomAlias, id.RoomID) error { return nil }
func (ft *fakeTransport) RemoveRoomAlias(context.Context, id.RoomAlias) error         { return nil }
func (ft *fakeTransport) SetDisplayName(context.Context, string) error                { return nil }
func (ft *fakeTransport) SetAvatarURL(context.Context, id.ContentURI) error           { return nil }
func (ft *fakeTransport) SetPresence(context.Context, event.Presence) error           { return nil }

func (ft *fakeTransport) SetTyping(context.Context, id.RoomID, bool, time.Duration) error {
	return nil
}

func (ft *fakeTransport) UploadMedia(context.Context, []byte, string) (id.ContentURI, error) {
	return id.ContentURI{Homeserver: "example.com", FileID: "fake-file"}, nil
}

func (ft *fakeTransport) DownloadMedia(context.Context, id.ContentURI) ([]byte, error) {
	return []byte("fake-media"), nil
}

func (ft *fakeTransport) joinCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.joinCalls)
}

func (ft *fakeTransport) registerCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.registerCalls)
}

const testBotMXID = id.UserID("@telegrambot:example.com")

// newTestManager builds a Manager whose transports are all fakes, keyed by
// user ID so tests can inspect per-identity calls.
func newTestManager(t *testing.T) (*Manager, *MemoryStore, map[id.UserID]*fakeTransport) {
	t.Helper()
	store := NewMemoryStore()
	transports := make(map[id.UserID]*fakeTransport)
	factory := func(userID id.UserID) (Transport, error) {
		ft := newFakeTransport()
		transports[userID] = ft
		return ft, nil
	}
	mgr, err := NewManager(zerolog.Nop(), store, factory, testBotMXID)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, store, transports
}

// mustIntent resolves an intent or fails the test.
func mustIntent(t *testing.T, mgr *Manager, userID id.UserID) *Intent {
	t.Helper()
	in, err := mgr.Intent(userID)
	if err != nil {
		t.Fatalf("Intent(%s): %v", userID, err)
	}
	return in
}
