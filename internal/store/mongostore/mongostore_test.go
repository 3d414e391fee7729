package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/database"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// newTestStore connects to MONGO_TEST_URI and drops the database afterwards.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, db, err := database.ConnectMongo(ctx, uri)
	require.NoError(t, err)
	db = client.Database(db.Name() + "_test_" + primitive.NewObjectID().Hex())

	s := New(client, db, store.DefaultMessageTTL)
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestRoomsAndPresence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	room := &models.ChatRoom{ID: "general", Name: "General", IsPublic: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateRoom(ctx, room))
	assert.ErrorIs(t, s.CreateRoom(ctx, room), store.ErrDuplicate)
	require.NoError(t, s.EnsureRoom(ctx, &models.ChatRoom{ID: "general", Name: "Renamed", IsPublic: true}))

	got, err := s.GetRoom(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "General", got.Name)

	_, err = s.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	alice := models.Principal{UserID: "u-alice", Username: "alice", Role: models.RoleUser}
	require.NoError(t, s.SetPresence(ctx, alice, models.StatusOnline, now))
	online, err := s.ListOnline(ctx, "", now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].Username)

	require.NoError(t, s.SetPresence(ctx, alice, models.StatusOffline, now))
	online, err = s.ListOnline(ctx, "", now.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msg := &models.ChatMessage{
		RoomID:         "general",
		SenderID:       "u-alice",
		SenderUsername: "alice",
		Content:        "gm",
		Attachments:    []models.Attachment{},
		Reactions:      []models.Reaction{},
		ReadBy:         []string{"u-alice"},
		DeliveryStatus: models.DeliveryStatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.InsertMessage(ctx, msg))
	require.False(t, msg.ID.IsZero())

	edited, err := s.EditContent(ctx, msg.ID, "gm frens", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "gm frens", edited.Content)

	r := models.Reaction{UserID: "u-bob", Username: "bob", Type: "🔥", Timestamp: now}
	reacted, err := s.ToggleReaction(ctx, msg.ID, r)
	require.NoError(t, err)
	assert.Len(t, reacted.Reactions, 1)
	reacted, err = s.ToggleReaction(ctx, msg.ID, r)
	require.NoError(t, err)
	assert.Empty(t, reacted.Reactions)

	require.NoError(t, s.MarkRead(ctx, []primitive.ObjectID{msg.ID}, "u-bob"))
	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-alice", "u-bob"}, got.ReadBy)
	assert.Equal(t, models.DeliveryStatusRead, got.DeliveryStatus)

	deleted, err := s.SoftDelete(ctx, msg.ID, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedMessageContent, deleted.Content)

	page, err := s.ListMessages(ctx, "general", nil, 50)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, msg.ID, page[0].ID)
}

func TestExpiredMessagesAreHidden(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-store.DefaultMessageTTL - time.Minute)

	msg := &models.ChatMessage{RoomID: "general", SenderID: "u-alice", Content: "old", CreatedAt: old, UpdatedAt: old}
	require.NoError(t, s.InsertMessage(ctx, msg))

	_, err := s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	page, err := s.ListMessages(ctx, "general", nil, 50)
	require.NoError(t, err)
	assert.Empty(t, page)
}
