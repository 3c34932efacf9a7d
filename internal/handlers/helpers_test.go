package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/store/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.SQLStore {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestSessions() *auth.Sessions {
	return auth.NewSessions([]byte("0123456789abcdef0123456789abcdef"), auth.Options{Name: "chatgod-test", MaxAge: 3600})
}

type mail struct {
	to, subject, body string
}

type mailbox struct {
	mu   sync.Mutex
	sent []mail
}

func (m *mailbox) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail{to, subject, body})
	return nil
}

var codeRe = regexp.MustCompile(`class="code">(\d{6})<`)

func (m *mailbox) last(t *testing.T) mail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

func (m *mailbox) lastCode(t *testing.T) string {
	t.Helper()
	match := codeRe.FindStringSubmatch(m.last(t).body)
	require.Len(t, match, 2, "no code in email")
	return match[1]
}

type presenceCall struct {
	userID int
	online bool
}

type recordPresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (p *recordPresence) SetPresence(_ context.Context, userID int, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, presenceCall{userID, online})
	return nil
}

// client carries cookies between requests and can act as a signed-in user.
type client struct {
	t       *testing.T
	cookies map[string]*http.Cookie
	as      *auth.Context
	vars    map[string]string
}

func newClient(t *testing.T) *client {
	return &client{t: t, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(h http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.as != nil {
		req = req.WithContext(auth.WithContext(req.Context(), c.as))
	}
	if c.vars != nil {
		req = mux.SetURLVars(req, c.vars)
		c.vars = nil
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rr
}

func (c *client) with(vars map[string]string) *client {
	c.vars = vars
	return c
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
