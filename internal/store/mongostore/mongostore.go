package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
	countersCollection = "counters"

	messageSequence = "message_id"
)

// MongoStore implements store.Store on top of a MongoDB database.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Email        string             `bson:"email"`
	FullName     string             `bson:"full_name"`
	PasswordHash string             `bson:"password_hash"`
	Bio          string             `bson:"bio"`
	ProfilePic   string             `bson:"profile_pic"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type messageDoc struct {
	ID          int64     `bson:"_id"`
	SenderID    string    `bson:"sender_id"`
	RecipientID string    `bson:"recipient_id"`
	Text        string    `bson:"text,omitempty"`
	Image       string    `bson:"image,omitempty"`
	Seen        bool      `bson:"seen"`
	CreatedAt   time.Time `bson:"created_at"`
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// New connects to uri, selects database and ensures indexes.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "seen", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create messages indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==== UserStore implementation ====

// CreateUser inserts a user with a fresh ObjectID.
func (s *MongoStore) CreateUser(ctx context.Context, user *store.User) (*store.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		FullName:     user.FullName,
		PasswordHash: user.PasswordHash,
		Bio:          user.Bio,
		ProfilePic:   user.ProfilePic,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toUser(), nil
}

// GetUserByID retrieves a user by its hex ObjectID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// GetUserByEmail retrieves a user by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser(), nil
}

// UpdateProfile sets name and bio, and the picture when provided.
func (s *MongoStore) UpdateProfile(ctx context.Context, id string, update store.ProfileUpdate) (*store.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}

	set := bson.M{
		"full_name":  update.FullName,
		"bio":        update.Bio,
		"updated_at": time.Now().UTC(),
	}
	if update.ProfilePic != "" {
		set["profile_pic"] = update.ProfilePic
	}

	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return doc.toUser(), nil
}

// ListUsers lists all users except exceptID, ordered by name.
func (s *MongoStore) ListUsers(ctx context.Context, exceptID string) ([]*store.User, error) {
	filter := bson.M{}
	if oid, err := primitive.ObjectIDFromHex(exceptID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}

	cur, err := s.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	users := make([]*store.User, 0)
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, doc.toUser())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (d userDoc) toUser() *store.User {
	return &store.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		FullName:     d.FullName,
		PasswordHash: d.PasswordHash,
		Bio:          d.Bio,
		ProfilePic:   d.ProfilePic,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// ==== MessageStore implementation ====

// nextMessageID atomically increments the message sequence.
func (s *MongoStore) nextMessageID(ctx context.Context) (int64, error) {
	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	return counter.Seq, nil
}

// CreateMessage persists a message with a sequence-assigned ID.
func (s *MongoStore) CreateMessage(ctx context.Context, senderID, recipientID, text, image string) (*store.Message, error) {
	id, err := s.nextMessageID(ctx)
	if err != nil {
		return nil, err
	}

	doc := messageDoc{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		Image:       image,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return doc.toMessage(), nil
}

// GetMessage retrieves a message by ID.
func (s *MongoStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return doc.toMessage(), nil
}

// SetSeen flags a message as seen.
func (s *MongoStore) SetSeen(ctx context.Context, id int64) error {
	res, err := s.messages.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"seen": true}})
	if err != nil {
		return fmt.Errorf("update message seen: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListConversation returns all messages between two users, oldest first.
func (s *MongoStore) ListConversation(ctx context.Context, userA, userB string) ([]*store.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "recipient_id": userB},
		bson.M{"sender_id": userB, "recipient_id": userA},
	}}

	cur, err := s.messages.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	defer cur.Close(ctx)

	messages := make([]*store.Message, 0)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkConversationSeen flags every unseen message from peer to viewer.
func (s *MongoStore) MarkConversationSeen(ctx context.Context, viewerID, peerID string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"sender_id": peerID, "recipient_id": viewerID, "seen": false},
		bson.M{"$set": bson.M{"seen": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark conversation seen: %w", err)
	}
	return res.ModifiedCount, nil
}

// FetchUnseenCounts aggregates unseen messages addressed to viewer by sender.
func (s *MongoStore) FetchUnseenCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	cur, err := s.messages.Aggregate(ctx, unseenCountsPipeline(viewerID))
	if err != nil {
		return nil, fmt.Errorf("aggregate unseen counts: %w", err)
	}
	defer cur.Close(ctx)

	counts := make(map[string]int)
	for cur.Next(ctx) {
		var row struct {
			SenderID string `bson:"_id"`
			Count    int    `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode unseen count: %w", err)
		}
		counts[row.SenderID] = row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen counts: %w", err)
	}
	return counts, nil
}

func unseenCountsPipeline(viewerID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"recipient_id": viewerID, "seen": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$sender_id", "count": bson.M{"$sum": 1}}}},
	}
}

func (d messageDoc) toMessage() *store.Message {
	return &store.Message{
		ID:          d.ID,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Text:        d.Text,
		Image:       d.Image,
		Seen:        d.Seen,
		CreatedAt:   d.CreatedAt,
	}
}
