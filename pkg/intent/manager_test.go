// Copyright 2024-2026 Aiku AI

package intent

import (
	"errors"
	"testing"

	"maunium.net/go/mautrix/id"
)

func TestIntentParsesIdentity(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager(t)

	tests := []struct {
		userID    id.UserID
		localpart string
		domain    string
	}{
		{"@telegram_12345:example.com", "telegram_12345", "example.com"},
		{"@a:x", "a", "x"},
		{"@user.name:matrix.example.org", "user.name", "matrix.example.org"},
	}
	for _, tt := range tests {
		in := mustIntent(t, mgr, tt.userID)
		if in.Localpart != tt.localpart {
			t.Errorf("%s: Localpart = %q, want %q", tt.userID, in.Localpart, tt.localpart)
		}
		if in.Domain != tt.domain {
			t.Errorf("%s: Domain = %q, want %q", tt.userID, in.Domain, tt.domain)
		}
	}
}

func TestIntentRejectsInvalidIdentity(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager(t)

	for _, userID := range []id.UserID{"", "no-sigil:example.com", "@missing-domain", "plain"} {
		_, err := mgr.Intent(userID)
		if !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("Intent(%q): err = %v, want ErrInvalidIdentity", userID, err)
		}
	}
}

func TestIntentCached(t *testing.T) {
	t.Parallel()
	mgr, _, transports := newTestManager(t)

	first := mustIntent(t, mgr, "@telegram_1:example.com")
	second := mustIntent(t, mgr, "@telegram_1:example.com")
	if first != second {
		t.Error("expected the same handle for repeated Intent calls")
	}
	// One transport for the bot, one for the user.
	if len(transports) != 2 {
		t.Errorf("transport count = %d, want 2", len(transports))
	}
}

func TestIntentForBotReturnsBot(t *testing.T) {
	t.Parallel()
	mgr, _, _ := newTestManager(t)

	in := mustIntent(t, mgr, testBotMXID)
	if in != mgr.Bot() {
		t.Error("Intent(bot MXID) should return the bot handle")
	}
	if !in.isBot {
		t.Error("bot handle should be marked as bot")
	}
}
