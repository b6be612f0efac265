package peer

import (
	"context"
	"dtn_chat/internal/model"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	// PeerRepo stores the identities of known peers, keyed by display name.
	PeerRepo struct {
		collection *mongo.Collection
	}
)

func NewPeerRepo(db *mongo.Database) *PeerRepo {
	return &PeerRepo{
		collection: db.Collection("peers"),
	}
}

// GetByName returns nil without error when no peer with that name exists.
func (r *PeerRepo) GetByName(ctx context.Context, name string) (*model.PeerIdentity, error) {
	filter := bson.M{
		"name": name,
	}

	var peer model.PeerIdentity
	err := r.collection.FindOne(ctx, filter).Decode(&peer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &peer, nil
}

func (r *PeerRepo) Upsert(ctx context.Context, peer *model.PeerIdentity) error {
	filter := bson.M{
		"name": peer.DisplayName,
	}

	_, err := r.collection.ReplaceOne(ctx, filter, peer, options.Replace().SetUpsert(true))
	return err
}
