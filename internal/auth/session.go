// Package auth carries the authenticated identity and the per-session
// assistant state in a signed and encrypted cookie session.
package auth

import (
	"context"
	"crypto/sha256"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	keyUserID       = "user_id"
	keyUsername     = "username"
	keyChatName     = "current_chat_name"
	keyResetContext = "reset_context"
	keyActiveModel  = "current_model"
)

// Context is the identity of the caller plus the session scalars the
// assistant state machine needs. It is passed explicitly into every
// operation that depends on who is calling.
type Context struct {
	UserID   int
	Username string

	// ChatName is the active assistant conversation; empty means idle.
	ChatName string
	// ResetContext suppresses transcript replay on the next ask.
	ResetContext bool
	// ActiveModel is the model label used by the previous ask.
	ActiveModel string
}

func (c *Context) Authenticated() bool { return c != nil && c.UserID != 0 }

type contextKey struct{}

func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(*Context)
	return ac, ok && ac.Authenticated()
}

type Options struct {
	Name   string
	MaxAge int
	Secure bool
}

type Sessions struct {
	store sessions.Store
	name  string
}

// NewSessions derives separate signing and encryption keys from secret, so
// session values are opaque to the client holding the cookie.
func NewSessions(secret []byte, opts Options) *Sessions {
	cs := sessions.NewCookieStore(deriveKey(secret, "session-hash", 64), deriveKey(secret, "session-block", 32))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   opts.MaxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: cs, name: opts.Name}
}

func deriveKey(secret []byte, info string, size int) []byte {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		panic("auth: hkdf: " + err.Error())
	}
	return key
}

func (s *Sessions) session(r *http.Request) (*sessions.Session, error) {
	// A cookie that fails to decode yields a fresh session and an error;
	// the fresh session is still usable.
	sess, err := s.store.Get(r, s.name)
	if sess == nil {
		return nil, err
	}
	return sess, nil
}

// Load returns the session's context. An anonymous request yields a
// context with zero UserID.
func (s *Sessions) Load(r *http.Request) (*Context, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	ac := &Context{}
	ac.UserID, _ = sess.Values[keyUserID].(int)
	ac.Username, _ = sess.Values[keyUsername].(string)
	ac.ChatName, _ = sess.Values[keyChatName].(string)
	ac.ResetContext, _ = sess.Values[keyResetContext].(bool)
	ac.ActiveModel, _ = sess.Values[keyActiveModel].(string)
	return ac, nil
}

// Save writes every field of ac back to the session cookie.
func (s *Sessions) Save(w http.ResponseWriter, r *http.Request, ac *Context) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	sess.Values[keyUserID] = ac.UserID
	sess.Values[keyUsername] = ac.Username
	setOrDelete(sess, keyChatName, ac.ChatName)
	sess.Values[keyResetContext] = ac.ResetContext
	setOrDelete(sess, keyActiveModel, ac.ActiveModel)
	return sess.Save(r, w)
}

// Login starts a fresh session for the user.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, userID int, username string) (*Context, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, err
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	ac := &Context{UserID: userID, Username: username}
	sess.Values[keyUserID] = userID
	sess.Values[keyUsername] = username
	return ac, sess.Save(r, w)
}

func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// Pending is a short-lived emailed code and the data it unlocks.
type Pending struct {
	Code      string
	Username  string
	Email     string
	Secret    string
	UserID    int
	ExpiresAt time.Time
}

const (
	PendingRegistration = "register"
	PendingReset        = "reset"
)

func (s *Sessions) SetPending(w http.ResponseWriter, r *http.Request, kind string, p Pending) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	prefix := "pending_" + kind + "_"
	sess.Values[prefix+"code"] = p.Code
	sess.Values[prefix+"username"] = p.Username
	sess.Values[prefix+"email"] = p.Email
	sess.Values[prefix+"secret"] = p.Secret
	sess.Values[prefix+"user_id"] = p.UserID
	sess.Values[prefix+"expires"] = p.ExpiresAt.Unix()
	return sess.Save(r, w)
}

// Pending returns the pending entry of kind, if one exists and has not
// expired at now.
func (s *Sessions) Pending(r *http.Request, kind string, now time.Time) (Pending, bool) {
	sess, err := s.session(r)
	if err != nil {
		return Pending{}, false
	}
	prefix := "pending_" + kind + "_"
	var p Pending
	var ok bool
	if p.Code, ok = sess.Values[prefix+"code"].(string); !ok || p.Code == "" {
		return Pending{}, false
	}
	p.Username, _ = sess.Values[prefix+"username"].(string)
	p.Email, _ = sess.Values[prefix+"email"].(string)
	p.Secret, _ = sess.Values[prefix+"secret"].(string)
	p.UserID, _ = sess.Values[prefix+"user_id"].(int)
	expires, _ := sess.Values[prefix+"expires"].(int64)
	p.ExpiresAt = time.Unix(expires, 0)
	if !now.Before(p.ExpiresAt) {
		return Pending{}, false
	}
	return p, true
}

func (s *Sessions) ClearPending(w http.ResponseWriter, r *http.Request, kind string) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	prefix := "pending_" + kind + "_"
	for _, k := range []string{"code", "username", "email", "secret", "user_id", "expires"} {
		delete(sess.Values, prefix+k)
	}
	return sess.Save(r, w)
}

func setOrDelete(sess *sessions.Session, key, value string) {
	if value == "" {
		delete(sess.Values, key)
		return
	}
	sess.Values[key] = value
}
