// Package store is the thin boundary to the document database. The
// coordinator only needs connect-or-die plus two CRUD calls; everything
// durable belongs to the collaborator that owns the collections.
package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mkrasov/huddle/internal/domain"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the store and pings it. The caller exits the process on
// error; no connections are accepted before the store is reachable.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, errors.Wrap(err, "mongo ping")
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveMessage inserts the relayed message payload as-is.
func (s *Store) SaveMessage(ctx context.Context, raw json.RawMessage) error {
	var doc bson.M
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "decode message")
	}
	delete(doc, "_id")
	_, err := s.db.Collection("messages").InsertOne(ctx, doc)
	return errors.Wrap(err, "insert message")
}

// ConversationParticipants returns the user ids of a conversation's
// members. Unknown conversations yield an empty slice.
func (s *Store) ConversationParticipants(ctx context.Context, conversationID string) ([]domain.UserID, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "conversation id")
	}

	var conv struct {
		Users []primitive.ObjectID `bson:"users"`
	}
	err = s.db.Collection("conversations").FindOne(ctx, bson.M{"_id": oid}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find conversation")
	}

	out := make([]domain.UserID, 0, len(conv.Users))
	for _, u := range conv.Users {
		out = append(out, domain.UserID(u.Hex()))
	}
	return out, nil
}
