package conversation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/cipher"
	"github.com/shubham07069/chatgod/internal/events"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/store/sqlstore"
)

type published struct {
	room  string
	event string
	data  any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(room, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{room, event, data})
}

func (p *fakePublisher) Broadcast(event string, data any) { p.Publish("", event, data) }

func (p *fakePublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *fakePublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeSink struct {
	events []Event
	err    error
}

func (s *fakeSink) Emit(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return s.err
}

type fixture struct {
	svc   *Service
	store *sqlstore.SQLStore
	pub   *fakePublisher
	sink  *fakeSink
	alice *models.User
	bob   *models.User
	carol *models.User
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c, err := cipher.NewRandom()
	require.NoError(t, err)

	f := &fixture{store: st, pub: &fakePublisher{}, sink: &fakeSink{}, now: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithSink(f.sink), WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewService(st, c, f.pub, opts...)

	ctx := context.Background()
	for name, u := range map[string]**models.User{"alice": &f.alice, "bob": &f.bob, "carol": &f.carol} {
		*u = &models.User{Username: name, PasswordHash: "x"}
		require.NoError(t, st.CreateUser(ctx, *u))
	}
	return f
}

func ptr(n int) *int { return &n }

func TestSendEncryptsAndHistoryDecrypts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "hi"})
	require.NoError(t, err)

	assert.Equal(t, models.ContentText, sent.Stored.ContentType)
	assert.NotEqual(t, "hi", sent.Stored.Content)
	require.NotNil(t, sent.Stored.ReceiverID)
	assert.Equal(t, f.bob.ID, *sent.Stored.ReceiverID)
	assert.Equal(t, "hi", sent.Plaintext)

	raw, err := f.store.GetMessage(ctx, sent.Stored.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hi", raw.Content)

	history, err := f.svc.History(ctx, f.alice.ID, ptr(f.bob.ID), nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)

	// Symmetric from the receiver's side.
	history, err = f.svc.History(ctx, f.bob.ID, ptr(f.alice.ID), nil)
	require.NoError(t, err)
	require.Len(t, history, 1)

	last := f.pub.last()
	assert.Equal(t, events.ReceiveMessage, last.event)
	assert.Equal(t, sent.Room, last.room)
	payload := last.data.(events.MessagePayload)
	assert.Equal(t, "hi", payload.Content)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, EventCreated, f.sink.events[0].Type)
}

func TestSendAddressValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), GroupID: ptr(1), Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), ContentType: "audio", Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), ContentType: models.ContentImage})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(9999), Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Zero(t, f.pub.count(events.ReceiveMessage))
}

func TestMediaMessageIsNotEncrypted(t *testing.T) {
	f := newFixture(t)
	sent, err := f.svc.Send(context.Background(), SendRequest{
		SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), ContentType: models.ContentImage, FilePath: "uploads/cat.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads/cat.png", sent.Stored.FilePath)
	assert.Equal(t, "", sent.Stored.Content)
}

func TestGroupSendRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.CreateGroup(ctx, f.alice.ID, "team", []int{f.bob.ID}, false)
	require.NoError(t, err)

	sent, err := f.svc.Send(ctx, SendRequest{SenderID: f.bob.ID, GroupID: ptr(g.ID), Content: "hello team"})
	require.NoError(t, err)
	assert.Equal(t, "group_"+strconv.Itoa(g.ID), sent.Room)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.carol.ID, GroupID: ptr(g.ID), Content: "let me in"})
	assert.ErrorIs(t, err, apperr.ErrPermission)

	_, err = f.svc.History(ctx, f.carol.ID, nil, ptr(g.ID))
	assert.ErrorIs(t, err, apperr.ErrPermission)

	history, err := f.svc.History(ctx, f.alice.ID, nil, ptr(g.ID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello team", history[0].Content)
}

func TestChannelOnlyAdminsPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.svc.CreateGroup(ctx, f.alice.ID, "news", []int{f.bob.ID}, true)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.bob.ID, GroupID: ptr(ch.ID), Content: "can I?"})
	assert.ErrorIs(t, err, apperr.ErrPermission)

	_, err = f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, GroupID: ptr(ch.ID), Content: "announcement"})
	assert.NoError(t, err)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "read me"})
	require.NoError(t, err)

	changed, err := f.svc.MarkRead(ctx, sent.Stored.ID, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, changed, "sender reading own message")

	changed, err = f.svc.MarkRead(ctx, sent.Stored.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.MarkRead(ctx, sent.Stored.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 1, f.pub.count(events.MessageRead))

	m, err := f.store.GetMessage(ctx, sent.Stored.ID)
	require.NoError(t, err)
	assert.True(t, m.IsRead)

	_, err = f.svc.MarkRead(ctx, sent.Stored.ID, f.carol.ID)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	_, err = f.svc.MarkRead(ctx, 777, f.bob.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEditByNonSenderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "original"})
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, sent.Stored.ID, f.bob.ID, "hijacked")
	assert.ErrorIs(t, err, apperr.ErrPermission)

	history, err := f.svc.History(ctx, f.alice.ID, ptr(f.bob.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, "original", history[0].Content)
	assert.False(t, history[0].Edited)

	edited, err := f.svc.Edit(ctx, sent.Stored.ID, f.alice.ID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.True(t, edited.Edited)

	history, err = f.svc.History(ctx, f.alice.ID, ptr(f.bob.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", history[0].Content)
	assert.True(t, history[0].Edited)

	last := f.pub.last()
	assert.Equal(t, events.MessageEdited, last.event)
	assert.Equal(t, events.EditedPayload{MessageID: sent.Stored.ID, Content: "fixed", Edited: true}, last.data)

	_, err = f.svc.Edit(ctx, sent.Stored.ID, f.alice.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDisappearTimer(t *testing.T) {
	f := newFixture(t, WithDisappearEnforcement(true))
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "secret"})
	require.NoError(t, err)

	_, err = f.svc.SetDisappearTimer(ctx, sent.Stored.ID, f.bob.ID, 10)
	assert.ErrorIs(t, err, apperr.ErrPermission)
	_, err = f.svc.SetDisappearTimer(ctx, sent.Stored.ID, f.alice.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	m, err := f.svc.SetDisappearTimer(ctx, sent.Stored.ID, f.alice.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "secret", m.Content)
	assert.Equal(t, events.TimerPayload{MessageID: sent.Stored.ID, Timer: 10}, f.pub.last().data)

	history, err := f.svc.History(ctx, f.bob.ID, ptr(f.alice.ID), nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	f.now = f.now.Add(11 * time.Second)
	history, err = f.svc.History(ctx, f.bob.ID, ptr(f.alice.ID), nil)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryPlaceholderOnDecryptFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "before restart"})
	require.NoError(t, err)

	other, err := cipher.NewRandom()
	require.NoError(t, err)
	restarted := NewService(f.store, other, nil)

	history, err := restarted.History(ctx, f.alice.ID, ptr(f.bob.ID), nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, cipher.Placeholder, history[0].Content)
}

func TestOpenConversationMarksPeerMessagesRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Send(ctx, SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "one"})
	require.NoError(t, err)
	b, err := f.svc.Send(ctx, SendRequest{SenderID: f.bob.ID, ReceiverID: ptr(f.alice.ID), Content: "two"})
	require.NoError(t, err)

	history, err := f.svc.OpenConversation(ctx, f.bob.ID, ptr(f.alice.ID), nil)
	require.NoError(t, err)
	require.Len(t, history, 2)

	for _, m := range history {
		switch m.ID {
		case a.Stored.ID:
			assert.True(t, m.IsRead)
		case b.Stored.ID:
			assert.False(t, m.IsRead)
		}
	}
}

func TestSetPresenceBroadcasts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SetPresence(context.Background(), f.alice.ID, true))

	last := f.pub.last()
	assert.Equal(t, "", last.room)
	assert.Equal(t, events.UserStatus, last.event)
	status := last.data.(events.StatusPayload)
	assert.Equal(t, events.StatusOnline, status.Status)
	require.NotNil(t, status.LastSeen)
	assert.True(t, f.now.Equal(*status.LastSeen))
}

func TestStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PostStatus(ctx, f.alice.ID, "", "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	st, err := f.svc.PostStatus(ctx, f.alice.ID, "feeling great", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ContentText, st.ContentType)

	list, err := f.svc.ListStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "feeling great", list[0].Content)
}

func TestSinkFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("broker down")

	_, err := f.svc.Send(context.Background(), SendRequest{SenderID: f.alice.ID, ReceiverID: ptr(f.bob.ID), Content: "still works"})
	assert.NoError(t, err)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGroup(ctx, f.alice.ID, "  ", nil, false)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateGroup(ctx, f.alice.ID, "ghosts", []int{424242}, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	groups, err := f.svc.ListGroups(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroupAndStatusTimestampsAreUTC(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2025, 5, 1, 13, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	ctx := context.Background()

	g, err := f.svc.CreateGroup(ctx, f.alice.ID, "trip", []int{f.bob.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, g.CreatedAt.Location())
	assert.True(t, f.now.Equal(g.CreatedAt))

	st, err := f.svc.PostStatus(ctx, f.alice.ID, "on the road", "", "")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, st.Timestamp.Location())
	assert.True(t, f.now.Equal(st.Timestamp))
}
