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

type rideRequestRepository struct {
	collection *mongo.Collection
	timeout    opTimeout
}

func NewRideRequestRepository(db *mongo.Database, timeout time.Duration) interfaces.RideRequestRepository {
	return &rideRequestRepository{
		collection: db.Collection(database.CollectionRideRequests),
		timeout:    opTimeout(timeout),
	}
}

func (r *rideRequestRepository) Create(ctx context.Context, request *models.RideRequest) error {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	if request.ID.IsZero() {
		request.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		return fmt.Errorf("failed to create ride request: %w", err)
	}
	return nil
}

func (r *rideRequestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.RideRequest, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	var request models.RideRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("ride request %s: %w", id.Hex(), interfaces.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get ride request: %w", err)
	}

	return &request, nil
}

func (r *rideRequestRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.RideRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, nil)
}

func (r *rideRequestRepository) GetByUser(ctx context.Context, userID primitive.ObjectID, status *models.RideRequestStatus) ([]*models.RideRequest, error) {
	filter := bson.M{"user_id": userID}
	if status != nil {
		filter["status"] = *status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *rideRequestRepository) FindSearchingInGeohashRange(ctx context.Context, start, end string, excludeID primitive.ObjectID) ([]*models.RideRequest, error) {
	filter := bson.M{
		"status": models.RideRequestStatusSearching,
		"origin.geohash": bson.M{
			"$gte": start,
			"$lte": end,
		},
		"_id": bson.M{"$ne": excludeID},
	}

	opts := options.Find().SetSort(bson.D{{Key: "origin.geohash", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *rideRequestRepository) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expected models.RideRequestStatus, updates map[string]interface{}) (bool, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": expected},
		bson.M{"$set": setUpdatedAt(updates)},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update ride request: %w", err)
	}

	return result.MatchedCount == 1, nil
}

func (r *rideRequestRepository) DeleteIfStatus(ctx context.Context, id primitive.ObjectID, expected models.RideRequestStatus) (bool, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "status": expected})
	if err != nil {
		return false, fmt.Errorf("failed to delete ride request: %w", err)
	}

	return result.DeletedCount == 1, nil
}

func (r *rideRequestRepository) DetachFromMatch(ctx context.Context, id primitive.ObjectID, matchID *primitive.ObjectID) (bool, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	filter := bson.M{"_id": id, "status": models.RideRequestStatusMatched}
	if matchID != nil {
		filter["match_id"] = *matchID
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": setUpdatedAt(map[string]interface{}{
		"status":       models.RideRequestStatusSearching,
		"match_id":     nil,
		"matched_with": []primitive.ObjectID{},
	})})
	if err != nil {
		return false, fmt.Errorf("failed to detach ride request: %w", err)
	}

	return result.MatchedCount == 1, nil
}

func (r *rideRequestRepository) UpdateStatusForMatch(ctx context.Context, matchID primitive.ObjectID, from, to models.RideRequestStatus) (int64, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{"match_id": matchID, "status": from},
		bson.M{"$set": setUpdatedAt(map[string]interface{}{"status": to})},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update ride requests for match: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *rideRequestRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.RideRequest, error) {
	ctx, cancel := r.timeout.with(ctx)
	defer cancel()

	if opts == nil {
		opts = options.Find()
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query ride requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.RideRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode ride requests: %w", err)
	}

	return requests, nil
}
