package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusride/internal/models"
	"campusride/internal/repositories/interfaces"
	"campusride/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var activeMatchStatuses = []models.MatchStatus{
	models.MatchStatusPending,
	models.MatchStatusConfirmed,
	models.MatchStatusRiding,
}

type matchRepository struct {
	collection *mongo.Collection
	timeout    opTimeout
}

func NewMatchRepository(db *mongo.Database, timeout time.Duration) interfaces.MatchRepository {
	return &matchRepository{
		collection: db.Collection(database.CollectionRideMatches),
		timeout:    opTimeout(timeout),
	}
}

func (r *matchRepository) Create(ctx context.Context, match *models.RideMatch) error {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	if match.ID.IsZero() {
		match.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, match); err != nil {
		return fmt.Errorf("failed to create ride match: %w", err)
	}
	return nil
}

func (r *matchRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.RideMatch, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	var match models.RideMatch
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&match)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("ride match %s: %w", id.Hex(), interfaces.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get ride match: %w", err)
	}

	return &match, nil
}

func (r *matchRepository) UpdateIfVersion(ctx context.Context, id primitive.ObjectID, version int64, updates map[string]interface{}) (bool, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	set := setUpdatedAt(updates)
	delete(set, "version")

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "version": version},
		bson.M{
			"$set": set,
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update ride match: %w", err)
	}

	return result.MatchedCount == 1, nil
}

func (r *matchRepository) FindActiveByRequestIDs(ctx context.Context, requestIDs []primitive.ObjectID) ([]*models.RideMatch, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"request_ids": bson.M{"$in": requestIDs},
		"status":      bson.M{"$in": activeMatchStatuses},
	}
	return r.find(ctx, filter, options.Find())
}

func (r *matchRepository) FindPendingDepartedBefore(ctx context.Context, before time.Time, limit int64) ([]*models.RideMatch, error) {
	filter := bson.M{
		"status":         models.MatchStatusPending,
		"departure_time": bson.M{"$lt": before},
	}

	opts := options.Find().SetSort(bson.D{{Key: "departure_time", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, filter, opts)
}

func (r *matchRepository) FindPendingCreatedBefore(ctx context.Context, before time.Time, limit int64) ([]*models.RideMatch, error) {
	filter := bson.M{
		"status":     models.MatchStatusPending,
		"created_at": bson.M{"$lte": before},
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, filter, opts)
}

func (r *matchRepository) GetByParticipant(ctx context.Context, userID primitive.ObjectID, status *models.MatchStatus) ([]*models.RideMatch, error) {
	filter := bson.M{"participants.user_id": userID}
	if status != nil {
		filter["status"] = *status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *matchRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.RideMatch, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query ride matches: %w", err)
	}
	defer cursor.Close(ctx)

	var matches []*models.RideMatch
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode ride matches: %w", err)
	}

	return matches, nil
}
