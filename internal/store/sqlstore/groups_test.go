package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/store"
)

func TestCreateGroup(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")
	bob := mustCreateUser(t, "bob")
	carol := mustCreateUser(t, "carol")

	g := &models.Group{Name: "friends", CreatorID: alice.ID}
	require.NoError(t, testStore.CreateGroup(ctx, g, []int{bob.ID, alice.ID, bob.ID}))
	require.NotZero(t, g.ID)

	members, err := testStore.GetGroupMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.GroupMember{GroupID: g.ID, UserID: alice.ID, IsAdmin: true}, members[0])
	assert.Equal(t, models.GroupMember{GroupID: g.ID, UserID: bob.ID, IsAdmin: false}, members[1])

	_, err = testStore.GetMembership(ctx, g.ID, carol.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	groups, err := testStore.GetUserGroups(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "friends", groups[0].Name)

	got, err := testStore.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.CreatorID)
	assert.False(t, got.IsChannel)
}

func TestCreateGroupRollsBack(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	alice := mustCreateUser(t, "alice")

	// A unique name index makes the second insert fail inside the transaction.
	_, err := testStore.db.Exec("CREATE UNIQUE INDEX one_group_name ON chat_groups (name)")
	require.NoError(t, err)
	require.NoError(t, testStore.CreateGroup(ctx, &models.Group{Name: "dup", CreatorID: alice.ID}, nil))

	err = testStore.CreateGroup(ctx, &models.Group{Name: "dup", CreatorID: alice.ID}, nil)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	groups, err := testStore.GetUserGroups(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}
