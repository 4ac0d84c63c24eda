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
)

const userCacheTTL = 15 * time.Minute

// CacheService is the subset of pkg/cache the user repository needs.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type userRepository struct {
	collection *mongo.Collection
	cache      CacheService
	timeout    opTimeout
}

// NewUserRepository returns a read-through cached user store. cache may be
// nil.
func NewUserRepository(db *mongo.Database, cache CacheService, timeout time.Duration) interfaces.UserRepository {
	return &userRepository{
		collection: db.Collection(database.CollectionUsers),
		cache:      cache,
		timeout:    opTimeout(timeout),
	}
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if user := r.getUserFromCache(ctx, id); user != nil {
		return user, nil
	}

	qctx, cancel := r.timeout.with(ctx)
	defer cancel()

	var user models.User
	err := r.collection.FindOne(qctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", id.Hex(), interfaces.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	r.cacheUser(ctx, &user)

	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	users := make(map[primitive.ObjectID]*models.User, len(ids))

	var misses []primitive.ObjectID
	for _, id := range ids {
		if _, seen := users[id]; seen {
			continue
		}
		if user := r.getUserFromCache(ctx, id); user != nil {
			users[id] = user
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return users, nil
	}

	qctx, cancel := r.timeout.with(ctx)
	defer cancel()

	cursor, err := r.collection.Find(qctx, bson.M{"_id": bson.M{"$in": misses}})
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(qctx)

	var found []*models.User
	if err := cursor.All(qctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	for _, user := range found {
		users[user.ID] = user
		r.cacheUser(ctx, user)
	}

	return users, nil
}

func userCacheKey(id primitive.ObjectID) string {
	return fmt.Sprintf("user:%s", id.Hex())
}

func (r *userRepository) cacheUser(ctx context.Context, user *models.User) {
	if r.cache != nil {
		_ = r.cache.Set(ctx, userCacheKey(user.ID), user, userCacheTTL)
	}
}

func (r *userRepository) getUserFromCache(ctx context.Context, id primitive.ObjectID) *models.User {
	if r.cache == nil {
		return nil
	}

	var user models.User
	if err := r.cache.Get(ctx, userCacheKey(id), &user); err != nil {
		return nil
	}

	return &user
}
