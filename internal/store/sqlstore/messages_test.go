package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/store"
)

func direct(sender, receiver int, content string, at time.Time) *models.Message {
	r := receiver
	return &models.Message{SenderID: sender, ReceiverID: &r, Content: content, ContentType: models.ContentText, Timestamp: at}
}

func TestSaveAndGetDirectMessages(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	bob := mustCreateUser(t, "bob")
	carol := mustCreateUser(t, "carol")

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, testStore.SaveMessage(ctx, direct(alice.ID, bob.ID, "first", base)))
	require.NoError(t, testStore.SaveMessage(ctx, direct(bob.ID, alice.ID, "second", base.Add(time.Second))))
	require.NoError(t, testStore.SaveMessage(ctx, direct(alice.ID, carol.ID, "elsewhere", base)))
	// Same timestamp as "second": ordered by id.
	require.NoError(t, testStore.SaveMessage(ctx, direct(alice.ID, bob.ID, "third", base.Add(time.Second))))

	msgs, err := testStore.GetDirectMessages(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
	assert.Equal(t, "alice", msgs[0].SenderUsername)
	require.NotNil(t, msgs[0].ReceiverID)
	assert.Equal(t, bob.ID, *msgs[0].ReceiverID)
	assert.Nil(t, msgs[0].GroupID)
	assert.True(t, base.Equal(msgs[0].Timestamp))
}

func TestSaveMessageRequiresExactlyOneTarget(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	err := testStore.SaveMessage(ctx, &models.Message{SenderID: alice.ID, Content: "nowhere"})
	assert.Error(t, err)
}

func TestGroupMessages(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	g := &models.Group{Name: "g", CreatorID: alice.ID}
	require.NoError(t, testStore.CreateGroup(ctx, g, nil))

	gid := g.ID
	require.NoError(t, testStore.SaveMessage(ctx, &models.Message{SenderID: alice.ID, GroupID: &gid, Content: "hello group"}))

	msgs, err := testStore.GetGroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].GroupID)
	assert.Equal(t, g.ID, *msgs[0].GroupID)
	assert.Equal(t, models.ContentText, msgs[0].ContentType)
}

func TestMarkRead(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	bob := mustCreateUser(t, "bob")
	m := direct(alice.ID, bob.ID, "hi", time.Now())
	require.NoError(t, testStore.SaveMessage(ctx, m))

	changed, err := testStore.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = testStore.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = testStore.MarkRead(ctx, 4242)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkConversationRead(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	bob := mustCreateUser(t, "bob")
	now := time.Now()
	require.NoError(t, testStore.SaveMessage(ctx, direct(alice.ID, bob.ID, "1", now)))
	require.NoError(t, testStore.SaveMessage(ctx, direct(alice.ID, bob.ID, "2", now)))
	require.NoError(t, testStore.SaveMessage(ctx, direct(bob.ID, alice.ID, "3", now)))

	n, err := testStore.MarkConversationRead(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := testStore.GetDirectMessages(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, m.SenderID == alice.ID, m.IsRead, m.Content)
	}
}

func TestUpdateContentAndTimer(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	bob := mustCreateUser(t, "bob")
	m := direct(alice.ID, bob.ID, "old", time.Now())
	require.NoError(t, testStore.SaveMessage(ctx, m))

	require.NoError(t, testStore.UpdateMessageContent(ctx, m.ID, "new"))
	require.NoError(t, testStore.SetDisappearTimer(ctx, m.ID, 30))

	got, err := testStore.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
	assert.True(t, got.Edited)
	require.NotNil(t, got.DisappearTimer)
	assert.Equal(t, 30, *got.DisappearTimer)

	assert.ErrorIs(t, testStore.UpdateMessageContent(ctx, 999, "x"), store.ErrNotFound)
	assert.ErrorIs(t, testStore.SetDisappearTimer(ctx, 999, 5), store.ErrNotFound)
}
