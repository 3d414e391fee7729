// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/AnshRaj112/airdrop-chat-backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	rooms    *mongo.Collection
	messages *mongo.Collection
	ttl      time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected database. ttl is the message lifetime used by
// the TTL index; zero means store.DefaultMessageTTL.
func New(client *mongo.Client, db *mongo.Database, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = store.DefaultMessageTTL
	}
	return &Store{
		client:   client,
		db:       db,
		users:    db.Collection(store.UsersCollection),
		rooms:    db.Collection(store.RoomsCollection),
		messages: db.Collection(store.MessagesCollection),
		ttl:      ttl,
	}
}

// EnsureIndexes configures indexes for every collection the dashboard shares.
// Called on startup from main after Mongo has connected.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		store.MessagesCollection: {
			{
				// Messages are hard-deleted by the server's TTL monitor.
				Keys:    bson.D{{Key: "created_at", Value: 1}},
				Options: options.Index().SetName("ttl_created_at").SetExpireAfterSeconds(int32(s.ttl.Seconds())),
			},
			{
				Keys: bson.D{
					{Key: "room_id", Value: 1},
					{Key: "created_at", Value: -1},
				},
				Options: options.Index().SetName("idx_room_created_at"),
			},
		},
		store.UsersCollection: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetName("uniq_username").SetUnique(true).SetSparse(true),
			},
			{
				Keys: bson.D{
					{Key: "status", Value: 1},
					{Key: "last_active", Value: -1},
				},
				Options: options.Index().SetName("idx_status_last_active"),
			},
		},
		store.RoomsCollection: {
			{
				Keys:    bson.D{{Key: "is_public", Value: 1}, {Key: "updated_at", Value: -1}},
				Options: options.Index().SetName("idx_public_updated_at"),
			},
			{
				Keys:    bson.D{{Key: "members", Value: 1}},
				Options: options.Index().SetName("idx_members"),
			},
		},
		store.AirdropsCollection: {
			{
				Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_owner_created_at"),
			},
		},
		store.QuestsCollection: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetName("uniq_slug").SetUnique(true),
			},
		},
		store.QuestCompletionsCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "quest_id", Value: 1}},
				Options: options.Index().SetName("uniq_user_quest").SetUnique(true),
			},
		},
	}

	for name, ims := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, ims); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// cutoff is the oldest created_at still alive. The TTL monitor only runs about
// once a minute, so reads filter out documents it has not reached yet.
func (s *Store) cutoff() time.Time {
	return time.Now().UTC().Add(-s.ttl)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

// --- users ---

func (s *Store) SetPresence(ctx context.Context, p models.Principal, status models.PresenceStatus, at time.Time) error {
	role := p.Role
	if role == "" {
		role = models.RoleUser
	}
	set := bson.M{
		"status":      status,
		"last_active": at,
		"updated_at":  at,
	}
	if p.Username != "" {
		set["username"] = p.Username
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": at, "role": role},
	}
	_, err := s.users.UpdateByID(ctx, p.UserID, update, options.Update().SetUpsert(true))
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) ListOnline(ctx context.Context, excluding string, awayCutoff time.Time, limit int) ([]models.User, error) {
	filter := bson.M{
		"_id": bson.M{"$ne": excluding},
		"$or": bson.A{
			bson.M{"status": models.StatusOnline},
			bson.M{"status": models.StatusAway, "last_active": bson.M{"$gte": awayCutoff}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_active", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// --- rooms ---

func (s *Store) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	_, err := s.rooms.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) EnsureRoom(ctx context.Context, room *models.ChatRoom) error {
	insert := bson.M{
		"name":        room.Name,
		"description": room.Description,
		"topic":       room.Topic,
		"is_public":   room.IsPublic,
		"members":     room.Members,
		"created_at":  room.CreatedAt,
		"updated_at":  room.UpdatedAt,
	}
	_, err := s.rooms.UpdateByID(ctx, room.ID, bson.M{"$setOnInsert": insert}, options.Update().SetUpsert(true))
	return err
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.ChatRoom, error) {
	var r models.ChatRoom
	if err := s.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) ListRooms(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"is_public": true},
		bson.M{"members": userID},
	}}
	cur, err := s.rooms.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var rooms []models.ChatRoom
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *Store) TouchRoom(ctx context.Context, id string, at time.Time) error {
	res, err := s.rooms.UpdateByID(ctx, id, bson.M{"$set": bson.M{"updated_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- messages ---

func (s *Store) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectIDFromTimestamp(msg.CreatedAt)
	}
	_, err := s.messages.InsertOne(ctx, msg)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id primitive.ObjectID) (*models.ChatMessage, error) {
	var m models.ChatMessage
	filter := bson.M{"_id": id, "created_at": bson.M{"$gt": s.cutoff()}}
	if err := s.messages.FindOne(ctx, filter).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListMessages pages newest-first and reverses to oldest-first for the UI.
func (s *Store) ListMessages(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.ChatMessage, error) {
	created := bson.M{"$gt": s.cutoff()}
	if before != nil {
		created["$lt"] = before.UTC()
	}
	filter := bson.M{"room_id": roomID, "created_at": created}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	msgs, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) ListMessagesAfter(ctx context.Context, roomID string, after time.Time, afterID primitive.ObjectID, limit int) ([]models.ChatMessage, error) {
	filter := bson.M{
		"room_id":    roomID,
		"created_at": bson.M{"$gt": s.cutoff()},
		"$or": bson.A{
			bson.M{"created_at": bson.M{"$gt": after.UTC()}},
			bson.M{"created_at": after.UTC(), "_id": bson.M{"$gt": afterID}},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, filter, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.ChatMessage, error) {
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []models.ChatMessage{}
	for cur.Next(ctx) {
		var m models.ChatMessage
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) findAndUpdate(ctx context.Context, id primitive.ObjectID, update interface{}) (*models.ChatMessage, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.ChatMessage
	filter := bson.M{"_id": id, "created_at": bson.M{"$gt": s.cutoff()}}
	if err := s.messages.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) EditContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*models.ChatMessage, error) {
	return s.findAndUpdate(ctx, id, bson.M{"$set": bson.M{
		"content":    content,
		"is_edited":  true,
		"updated_at": at,
	}})
}

func (s *Store) SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.ChatMessage, error) {
	return s.findAndUpdate(ctx, id, bson.M{"$set": bson.M{
		"content":     models.DeletedMessageContent,
		"attachments": bson.A{},
		"is_deleted":  true,
		"updated_at":  at,
	}})
}

// ToggleReaction runs as a single pipeline update so the check and the write
// happen atomically on the document.
func (s *Store) ToggleReaction(ctx context.Context, id primitive.ObjectID, r models.Reaction) (*models.ChatMessage, error) {
	reactions := bson.D{{Key: "$ifNull", Value: bson.A{"$reactions", bson.A{}}}}
	same := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$$r.user_id", r.UserID}}},
		bson.D{{Key: "$eq", Value: bson.A{"$$r.type", r.Type}}},
	}}}
	matching := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: reactions},
		{Key: "as", Value: "r"},
		{Key: "cond", Value: same},
	}}}
	others := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: reactions},
		{Key: "as", Value: "r"},
		{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{same}}}},
	}}}
	appended := bson.D{{Key: "$concatArrays", Value: bson.A{
		reactions,
		bson.D{{Key: "$literal", Value: bson.A{r}}},
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "reactions", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gt", Value: bson.A{bson.D{{Key: "$size", Value: matching}}, 0}}},
				others,
				appended,
			}}}},
			{Key: "updated_at", Value: r.Timestamp},
		}}},
	}
	return s.findAndUpdate(ctx, id, pipeline)
}

func (s *Store) MarkRead(ctx context.Context, ids []primitive.ObjectID, userID string) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{
		"_id":       bson.M{"$in": ids},
		"sender_id": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$addToSet": bson.M{"read_by": userID},
		"$set":      bson.M{"delivery_status": models.DeliveryStatusRead},
	}
	_, err := s.messages.UpdateMany(ctx, filter, update)
	return err
}
