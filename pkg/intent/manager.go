// Copyright 2024-2026 Aiku AI

package intent

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// Manager hands out one Intent per Matrix user ID and caches the handles
// for its own lifetime. The bot intent acts as the operator-level fallback
// for room joins of other identities.
type Manager struct {
	// StrictRegistration makes registration failures fatal instead of
	// best-effort. The default (false) matches the original bridge
	// behavior: any registration failure other than "user in use" is
	// logged and swallowed, and the handle is marked registered anyway to
	// avoid retry storms.
	StrictRegistration bool

	log          zerolog.Logger
	store        StateStore
	newTransport TransportFactory

	mu      sync.Mutex
	intents map[id.UserID]*Intent
	bot     *Intent
}

// NewManager creates a Manager whose bot intent acts as the given user.
func NewManager(log zerolog.Logger, store StateStore, factory TransportFactory, botMXID id.UserID) (*Manager, error) {
	mgr := &Manager{
		log:          log.With().Str("component", "intent").Logger(),
		store:        store,
		newTransport: factory,
		intents:      make(map[id.UserID]*Intent),
	}
	bot, err := mgr.newIntent(botMXID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot intent: %w", err)
	}
	bot.isBot = true
	mgr.bot = bot
	return mgr, nil
}

// Bot returns the bridge bot's intent.
func (mgr *Manager) Bot() *Intent {
	return mgr.bot
}

// Intent returns the handle for the given user, creating it on first use.
// Returns ErrInvalidIdentity if the user ID does not parse as
// @localpart:domain.
func (mgr *Manager) Intent(userID id.UserID) (*Intent, error) {
	if userID == mgr.bot.UserID {
		return mgr.bot, nil
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if in, ok := mgr.intents[userID]; ok {
		return in, nil
	}
	in, err := mgr.newIntent(userID)
	if err != nil {
		return nil, err
	}
	mgr.intents[userID] = in
	return in, nil
}

func (mgr *Manager) newIntent(userID id.UserID) (*Intent, error) {
	localpart, domain, err := userID.Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIdentity, userID)
	}
	transport, err := mgr.newTransport(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", userID, err)
	}
	return &Intent{
		UserID:    userID,
		Localpart: localpart,
		Domain:    domain,

		mgr:       mgr,
		transport: transport,
		log:       mgr.log.With().Str("user_id", userID.String()).Logger(),
	}, nil
}
