// Copyright 2024-2026 Aiku AI

// Package cryptostore persists per-device end-to-end encryption state for
// the bridge's encryption library: the device account, known device keys,
// inbound group sessions, pairwise olm sessions, and pending key requests.
// The table and column layout matches the schema the Python bridge used, so
// a database migrated from it keeps working.
package cryptostore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

// Store is the SQL-backed encryption state store.
type Store struct {
	db *dbutil.Database
}

// NewStore wraps an opened database handle. dialect is "sqlite3" or
// "postgres".
func NewStore(rawDB *sql.DB, dialect string, log zerolog.Logger) (*Store, error) {
	db, err := dbutil.NewWithDB(rawDB, dialect)
	if err != nil {
		return nil, err
	}
	db.Log = dbutil.ZeroLogger(log.With().Str("component", "cryptostore").Logger())
	return &Store{db: db}, nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS nio_account (
		user_id    VARCHAR(255) NOT NULL,
		device_id  VARCHAR(255) NOT NULL,
		shared     BOOLEAN      NOT NULL,
		sync_token TEXT         NOT NULL,
		account    BLOB         NOT NULL,
		PRIMARY KEY (user_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS nio_device_key (
		user_id      VARCHAR(255) NOT NULL,
		device_id    VARCHAR(255) NOT NULL,
		display_name VARCHAR(255) NOT NULL,
		deleted      BOOLEAN      NOT NULL,
		keys         TEXT         NOT NULL,
		PRIMARY KEY (user_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS nio_megolm_inbound_session (
		session_id       VARCHAR(255) NOT NULL,
		sender_key       VARCHAR(255) NOT NULL,
		fp_key           VARCHAR(255) NOT NULL,
		room_id          VARCHAR(255) NOT NULL,
		session          BLOB         NOT NULL,
		forwarded_chains TEXT         NOT NULL,
		PRIMARY KEY (session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS nio_olm_session (
		session_id VARCHAR(255) NOT NULL,
		sender_key VARCHAR(255) NOT NULL,
		session    BLOB         NOT NULL,
		created_at TIMESTAMP    NOT NULL,
		last_used  TIMESTAMP    NOT NULL,
		PRIMARY KEY (session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS nio_outgoing_key_request (
		request_id VARCHAR(255) NOT NULL,
		session_id VARCHAR(255) NOT NULL,
		room_id    VARCHAR(255) NOT NULL,
		algorithm  VARCHAR(255) NOT NULL,
		PRIMARY KEY (request_id)
	)`,
}

// Upgrade creates the schema if it doesn't exist yet.
func (s *Store) Upgrade(ctx context.Context) error {
	for _, table := range tables {
		if _, err := s.db.Exec(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Account is a device's encryption account state.
type Account struct {
	UserID    id.UserID
	DeviceID  id.DeviceID
	Shared    bool
	SyncToken string
	Account   []byte
}

// PutAccount inserts or replaces the account for (user, device).
func (s *Store) PutAccount(ctx context.Context, acc *Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO nio_account (user_id, device_id, shared, sync_token, account)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, device_id) DO UPDATE
			SET shared = excluded.shared,
			    sync_token = excluded.sync_token,
			    account = excluded.account
	`, acc.UserID, acc.DeviceID, acc.Shared, acc.SyncToken, acc.Account)
	return err
}

// GetAccount returns the account for (user, device), or nil when absent.
func (s *Store) GetAccount(ctx context.Context, userID id.UserID, deviceID id.DeviceID) (*Account, error) {
	acc := &Account{UserID: userID, DeviceID: deviceID}
	err := s.db.QueryRow(ctx, `
		SELECT shared, sync_token, account FROM nio_account
		WHERE user_id = $1 AND device_id = $2
	`, userID, deviceID).Scan(&acc.Shared, &acc.SyncToken, &acc.Account)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return acc, nil
}

// DeviceKey is another user's device identity key record. Keys holds the
// key map serialized as JSON.
type DeviceKey struct {
	UserID      id.UserID
	DeviceID    id.DeviceID
	DisplayName string
	Deleted     bool
	Keys        string
}

// PutDeviceKey inserts or replaces the key record for (user, device).
func (s *Store) PutDeviceKey(ctx context.Context, key *DeviceKey) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO nio_device_key (user_id, device_id, display_name, deleted, keys)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, device_id) DO UPDATE
			SET display_name = excluded.display_name,
			    deleted = excluded.deleted,
			    keys = excluded.keys
	`, key.UserID, key.DeviceID, key.DisplayName, key.Deleted, key.Keys)
	return err
}

// GetDeviceKeys returns all key records known for a user.
func (s *Store) GetDeviceKeys(ctx context.Context, userID id.UserID) ([]*DeviceKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT device_id, display_name, deleted, keys FROM nio_device_key
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []*DeviceKey
	for rows.Next() {
		key := &DeviceKey{UserID: userID}
		if err = rows.Scan(&key.DeviceID, &key.DisplayName, &key.Deleted, &key.Keys); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// InboundGroupSession is a received megolm session. ForwardedChains holds
// the forwarding chain serialized as JSON.
type InboundGroupSession struct {
	SessionID       id.SessionID
	SenderKey       string
	FPKey           string
	RoomID          id.RoomID
	Session         []byte
	ForwardedChains string
}

// PutInboundGroupSession inserts or replaces an inbound group session.
func (s *Store) PutInboundGroupSession(ctx context.Context, sess *InboundGroupSession) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO nio_megolm_inbound_session (session_id, sender_key, fp_key, room_id, session, forwarded_chains)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE
			SET sender_key = excluded.sender_key,
			    fp_key = excluded.fp_key,
			    room_id = excluded.room_id,
			    session = excluded.session,
			    forwarded_chains = excluded.forwarded_chains
	`, sess.SessionID, sess.SenderKey, sess.FPKey, sess.RoomID, sess.Session, sess.ForwardedChains)
	return err
}

// GetInboundGroupSession returns the session with the given ID, or nil.
func (s *Store) GetInboundGroupSession(ctx context.Context, sessionID id.SessionID) (*InboundGroupSession, error) {
	sess := &InboundGroupSession{SessionID: sessionID}
	err := s.db.QueryRow(ctx, `
		SELECT sender_key, fp_key, room_id, session, forwarded_chains
		FROM nio_megolm_inbound_session WHERE session_id = $1
	`, sessionID).Scan(&sess.SenderKey, &sess.FPKey, &sess.RoomID, &sess.Session, &sess.ForwardedChains)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return sess, nil
}

// OlmSession is a pairwise session with another device.
type OlmSession struct {
	SessionID id.SessionID
	SenderKey string
	Session   []byte
	CreatedAt time.Time
	LastUsed  time.Time
}

// PutOlmSession inserts or replaces an olm session.
func (s *Store) PutOlmSession(ctx context.Context, sess *OlmSession) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO nio_olm_session (session_id, sender_key, session, created_at, last_used)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
			SET sender_key = excluded.sender_key,
			    session = excluded.session,
			    created_at = excluded.created_at,
			    last_used = excluded.last_used
	`, sess.SessionID, sess.SenderKey, sess.Session, sess.CreatedAt.UTC(), sess.LastUsed.UTC())
	return err
}

// GetOlmSessions returns all sessions established with a sender key,
// most recently used first.
func (s *Store) GetOlmSessions(ctx context.Context, senderKey string) ([]*OlmSession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, session, created_at, last_used FROM nio_olm_session
		WHERE sender_key = $1 ORDER BY last_used DESC
	`, senderKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []*OlmSession
	for rows.Next() {
		sess := &OlmSession{SenderKey: senderKey}
		if err = rows.Scan(&sess.SessionID, &sess.Session, &sess.CreatedAt, &sess.LastUsed); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// OutgoingKeyRequest tracks a key request that hasn't been answered yet.
type OutgoingKeyRequest struct {
	RequestID string
	SessionID id.SessionID
	RoomID    id.RoomID
	Algorithm string
}

// PutOutgoingKeyRequest records a pending key request.
func (s *Store) PutOutgoingKeyRequest(ctx context.Context, req *OutgoingKeyRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO nio_outgoing_key_request (request_id, session_id, room_id, algorithm)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id) DO NOTHING
	`, req.RequestID, req.SessionID, req.RoomID, req.Algorithm)
	return err
}

// GetOutgoingKeyRequests returns all pending key requests.
func (s *Store) GetOutgoingKeyRequests(ctx context.Context) ([]*OutgoingKeyRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT request_id, session_id, room_id, algorithm FROM nio_outgoing_key_request
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []*OutgoingKeyRequest
	for rows.Next() {
		req := &OutgoingKeyRequest{}
		if err = rows.Scan(&req.RequestID, &req.SessionID, &req.RoomID, &req.Algorithm); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// DeleteOutgoingKeyRequest removes a key request once it has been answered.
func (s *Store) DeleteOutgoingKeyRequest(ctx context.Context, requestID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM nio_outgoing_key_request WHERE request_id = $1
	`, requestID)
	return err
}
