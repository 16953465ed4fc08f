// Copyright 2024-2026 Aiku AI

package intent

import (
	"sync"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// StateStore caches membership and power-level state so the intent layer
// can skip redundant joins and power-level fetches. Entries live for the
// lifetime of the bridge and are never explicitly deleted.
type StateStore interface {
	IsJoined(roomID id.RoomID, userID id.UserID) bool
	SetJoined(roomID id.RoomID, userID id.UserID)
	SetLeft(roomID id.RoomID, userID id.UserID)
	IsInvited(roomID id.RoomID, userID id.UserID) bool
	SetInvited(roomID id.RoomID, userID id.UserID)

	// HasPowerLevelData distinguishes "never fetched" from "fetched and
	// empty" for a room's power levels.
	HasPowerLevelData(roomID id.RoomID) bool
	HasPowerLevel(roomID id.RoomID, userID id.UserID, evtType event.Type) bool
	SetPowerLevels(roomID id.RoomID, levels *event.PowerLevelsEventContent)
}

type memberKey struct {
	RoomID id.RoomID
	UserID id.UserID
}

type membership struct {
	Joined  bool
	Invited bool
}

// MemoryStore is the in-memory StateStore used by default. Membership is
// keyed by (room, user) composite keys; power levels are cached per room.
type MemoryStore struct {
	mu          sync.RWMutex
	members     map[memberKey]membership
	powerLevels map[id.RoomID]*event.PowerLevelsEventContent
}

var _ StateStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:     make(map[memberKey]membership),
		powerLevels: make(map[id.RoomID]*event.PowerLevelsEventContent),
	}
}

func (ms *MemoryStore) IsJoined(roomID id.RoomID, userID id.UserID) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.members[memberKey{roomID, userID}].Joined
}

func (ms *MemoryStore) SetJoined(roomID id.RoomID, userID id.UserID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.members[memberKey{roomID, userID}] = membership{Joined: true}
}

func (ms *MemoryStore) SetLeft(roomID id.RoomID, userID id.UserID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.members[memberKey{roomID, userID}] = membership{}
}

func (ms *MemoryStore) IsInvited(roomID id.RoomID, userID id.UserID) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.members[memberKey{roomID, userID}].Invited
}

func (ms *MemoryStore) SetInvited(roomID id.RoomID, userID id.UserID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.members[memberKey{roomID, userID}] = membership{Invited: true}
}

func (ms *MemoryStore) HasPowerLevelData(roomID id.RoomID) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.powerLevels[roomID]
	return ok
}

func (ms *MemoryStore) HasPowerLevel(roomID id.RoomID, userID id.UserID, evtType event.Type) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	levels, ok := ms.powerLevels[roomID]
	if !ok {
		return false
	}
	return levels.GetUserLevel(userID) >= levels.GetEventLevel(evtType)
}

func (ms *MemoryStore) SetPowerLevels(roomID id.RoomID, levels *event.PowerLevelsEventContent) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.powerLevels[roomID] = levels
}
