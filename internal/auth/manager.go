package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/cryptostream"
	"github.com/exclusivedisjunction/regisd/internal/lockfile"
	"github.com/exclusivedisjunction/regisd/internal/session"
)

// DefaultApprovalTimeout is how long a FirstTime registration waits for
// an operator before the client receives Denied(TimedOut) (spec.md §5
// "Pending-user approval wait: configurable, default 5 min").
const DefaultApprovalTimeout = 5 * time.Minute

// Paths bundles the on-disk locations the Auth Manager owns.
type Paths struct {
	SigningKeyFile string // session.Codec's HMAC key (spec.md §4.4)
	UserStoreFile  string // UserStore.Save/Load target (spec.md §4.5)
}

// Manager is the composite coordination object of spec.md §4.7: one
// asymmetric keypair generated at startup, a session Codec, a UserStore,
// and an ApprovalQueue, all behind a logger handle.
//
// Grounded on the teacher's internal/controller.Controller (single
// composition root owning several collaborator stores behind one logger)
// generalized from issue-tracking collaborators to the auth domain's.
type Manager struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey

	codec *session.Codec
	store *UserStore
	queue *ApprovalQueue

	paths Paths
	log   *slog.Logger

	approvalTimeout time.Duration
}

// NewManager constructs a Manager. Call Initialize before use.
func NewManager(paths Paths, pendingQueueSize int, log *slog.Logger) *Manager {
	return &Manager{
		store:           NewUserStore(paths.UserStoreFile),
		queue:           NewApprovalQueue(pendingQueueSize),
		paths:           paths,
		log:             log,
		approvalTimeout: DefaultApprovalTimeout,
	}
}

// Initialize generates the asymmetric keypair, and loads or generates the
// session signing key and user store (spec.md §4.7 initialize).
func (m *Manager) Initialize() error {
	priv, err := cryptostream.GenerateAsymmetricKeyPair()
	if err != nil {
		return fmt.Errorf("auth: generate keypair: %w", err)
	}
	m.priv = priv
	m.pub = &priv.PublicKey

	signingKey, err := loadOrGenerateSigningKey(m.paths.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("auth: signing key: %w", err)
	}
	codec, err := session.NewCodec(signingKey)
	if err != nil {
		return err
	}
	m.codec = codec

	if err := m.store.Load(); err != nil {
		return fmt.Errorf("auth: load user store: %w", err)
	}
	return nil
}

// loadOrGenerateSigningKey reads the HMAC signing key from path, or
// generates and persists a fresh one at 0600 if absent (spec.md §4.4:
// "If the file is absent, generate and persist. ... permissions must
// restrict access to the daemon user" — carried forward from
// regisd/src/sess/keys.rs's generate-once-then-read sequencing).
func loadOrGenerateSigningKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != session.SigningKeySizeBytes {
			return nil, fmt.Errorf("auth: signing key file %s has %d bytes, want %d", path, len(data), session.SigningKeySizeBytes)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key, genErr := cryptostream.GenerateSymmetricKey() // same 32-byte RNG draw
	if genErr != nil {
		return nil, genErr
	}
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr != nil {
		return nil, mkErr
	}
	if writeErr := lockfile.WriteFileAtomic(path, key, 0o600); writeErr != nil {
		return nil, writeErr
	}
	return key, nil
}

// Save persists the user store to disk; idempotent (spec.md §4.7 save).
func (m *Manager) Save() error {
	return m.store.Save()
}

// PublicKeyPEM returns the daemon's asymmetric public key, PEM-encoded,
// the first frame sent in every client handshake (spec.md §4.10 HANDSHAKE).
func (m *Manager) PublicKeyPEM() ([]byte, error) {
	return cryptostream.EncodePublicKeyPEM(m.pub)
}

// RSAStream wraps rw in a receive-only AsymmetricStream bound to the
// daemon's private key, used once per connection to decrypt the client's
// handshake frame carrying the negotiated symmetric key (spec.md §4.7
// rsa_stream).
func (m *Manager) RSAStream(rw io.ReadWriter) *cryptostream.AsymmetricStream {
	return cryptostream.NewAsymmetricStream(rw, nil, m.priv)
}

// RegisterPending begins the FirstTime approval path: allocates a
// PendingUser and returns its id to the caller so the remote client can
// learn it (spec.md §4.10 AUTH: "register a PendingUser, return the
// pending id").
func (m *Manager) RegisterPending(fromIP string) (uint64, error) {
	return m.queue.Register(fromIP)
}

// AwaitApproval blocks until pendingID is approved or denied, or the
// approval timeout elapses (spec.md §4.10 AUTH FirstTime branch).
func (m *Manager) AwaitApproval(ctx context.Context, pendingID uint64) (*NewUserInfo, error) {
	return m.queue.Wait(ctx, pendingID, m.approvalTimeout)
}

// Pending returns a snapshot of the approval queue (console Auth(Pending)).
func (m *Manager) Pending() []PendingUser {
	return m.queue.List()
}

// Approve creates the new user, issues its session token, and wakes the
// connection worker awaiting pendingID (spec.md §4.6 approve). Returns
// nil if pendingID is unknown.
func (m *Manager) Approve(pendingID uint64, nickname string) (*NewUserInfo, error) {
	m.queue.mu.Lock()
	_, known := m.queue.pending[pendingID]
	m.queue.mu.Unlock()
	if !known {
		return nil, nil
	}
	info, err := m.createApprovedUser(nickname)
	if err != nil {
		return nil, err
	}
	if !m.queue.resolveApprove(pendingID, info) {
		return nil, nil
	}
	return info, nil
}

// Deny removes pendingID without creating a user (spec.md §4.6 deny).
func (m *Manager) Deny(pendingID uint64) bool {
	return m.queue.Deny(pendingID)
}

// CreateUser creates and immediately approves a user out-of-band of the
// pending queue (spec.md §4.7: "create_user(nickname) → {id, token} —
// delegates to the approval path"), without a remote FirstTime
// handshake. No console request reaches it.
func (m *Manager) CreateUser(nickname string) (*NewUserInfo, error) {
	return m.createApprovedUser(nickname)
}

func (m *Manager) createApprovedUser(nickname string) (*NewUserInfo, error) {
	u, err := m.store.Create(nickname)
	if err != nil {
		return nil, err
	}
	token, err := m.codec.Issue(session.Claims{UserID: u.ID, Key: u.AuthKey[:]})
	if err != nil {
		return nil, err
	}
	return &NewUserInfo{ID: u.ID, Token: token}, nil
}

// Renew re-issues a token for an existing, non-revoked user (spec.md
// §4.7 renew).
func (m *Manager) Renew(id uint64) (string, error) {
	u, ok := m.store.Get(id)
	if !ok {
		return "", ErrUserNotFound
	}
	if m.store.IsRevoked(id) {
		return "", ErrRevoked
	}
	return m.codec.Issue(session.Claims{UserID: u.ID, Key: u.AuthKey[:]})
}

// ErrRevoked is returned where an operation targets a revoked user.
var ErrRevoked = errors.New("auth: user is revoked")

// Revoke adds id to the revoked set (spec.md §4.7 revoke).
func (m *Manager) Revoke(id uint64) bool {
	return m.store.Revoke(id)
}

// IsRevoked reports whether id has been revoked.
func (m *Manager) IsRevoked(id uint64) bool {
	return m.store.IsRevoked(id)
}

// SignIn verifies token, and on success appends a sign-in history entry
// under fromIP (spec.md §4.7 sign_in; §4.10 AUTH Returning branch).
func (m *Manager) SignIn(token, fromIP string) bool {
	return m.Authenticate(token, fromIP) == SignInOK
}

// SignInOutcome distinguishes why a Returning token was or wasn't
// accepted, so the Client Listener Task can pick the right Deny reason
// (spec.md §4.10: "a returning but revoked user receives Denied(Revoked)").
type SignInOutcome int

const (
	SignInOK SignInOutcome = iota
	SignInInvalid
	SignInRevoked
)

// Authenticate verifies token and, on success, appends a sign-in history
// entry under fromIP. It is the granular form of SignIn, distinguishing
// an unparseable/tampered token from a revoked user.
func (m *Manager) Authenticate(token, fromIP string) SignInOutcome {
	claims, err := m.codec.Verify(token)
	if err != nil {
		return SignInInvalid
	}
	if len(claims.Key) != AuthKeySize {
		return SignInInvalid
	}
	if m.store.IsRevoked(claims.UserID) {
		return SignInRevoked
	}
	var key AuthKey
	copy(key[:], claims.Key)
	if !m.store.VerifyAndAppendHistory(claims.UserID, key, fromIP, time.Now()) {
		return SignInInvalid
	}
	return SignInOK
}

// AllUsers returns a snapshot of every registered user (console
// Auth(AllUsers)).
func (m *Manager) AllUsers() []*User {
	return m.store.Iter()
}

// UserDetail returns the full record for id, or false if unknown
// (console Auth(UserHistory(id))).
func (m *Manager) UserDetail(id uint64) (*User, bool) {
	return m.store.Get(id)
}
