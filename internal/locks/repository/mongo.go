package repository

import (
	"context"
	"errors"
	"time"

	lockserrors "wasteops/internal/locks/errors"
	"wasteops/pkg/config"
	"wasteops/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ResourceLocksCollection = "Resource_locks"

	maxReserveAttempts = 2
)

type mongoResourceLockRepository struct {
	collection *mongo.Collection
}

func NewMongoResourceLockRepository(cfg *config.Config) ResourceLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return NewMongoResourceLockRepositoryFromCollection(db.Collection(ResourceLocksCollection))
}

func NewMongoResourceLockRepositoryFromCollection(collection *mongo.Collection) ResourceLockRepository {
	return &mongoResourceLockRepository{collection: collection}
}

// Reserve relies on the unique _id: a duplicate key means the slot is taken,
// unless the holder has expired, in which case it is swapped out atomically.
func (r *mongoResourceLockRepository) Reserve(ctx context.Context, lock *model.ResourceLock, now time.Time) (*model.ResourceLock, error) {
	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		_, err := r.collection.InsertOne(ctx, lock)
		if err == nil {
			return nil, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, err
		}

		var displaced model.ResourceLock
		err = r.collection.FindOneAndReplace(ctx,
			expiredFilter(bson.M{"_id": lock.Key}, now),
			lock,
			options.FindOneAndReplace().SetReturnDocument(options.Before),
		).Decode(&displaced)
		if err == nil {
			return &displaced, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		// The holder is still active, or it vanished between the two calls.
	}
	return nil, lockserrors.ErrAlreadyReserved
}

func (r *mongoResourceLockRepository) Release(ctx context.Context, key model.LockKey) (*model.ResourceLock, error) {
	var released model.ResourceLock
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": key.String()}).Decode(&released)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &released, nil
}

func (r *mongoResourceLockRepository) ListByDate(ctx context.Context, date string, now time.Time) ([]*model.ResourceLock, []*model.ResourceLock, error) {
	locks, err := r.find(ctx, bson.M{"date": date})
	if err != nil {
		return nil, nil, err
	}

	var active, candidates []*model.ResourceLock
	for _, lock := range locks {
		if lock.Expired(now) {
			candidates = append(candidates, lock)
		} else {
			active = append(active, lock)
		}
	}

	expired, err := r.claimExpired(ctx, candidates, now)
	if err != nil {
		return nil, nil, err
	}
	return active, expired, nil
}

func (r *mongoResourceLockRepository) DeleteExpired(ctx context.Context, now time.Time) ([]*model.ResourceLock, error) {
	candidates, err := r.find(ctx, expiredFilter(bson.M{}, now))
	if err != nil {
		return nil, err
	}
	return r.claimExpired(ctx, candidates, now)
}

func (r *mongoResourceLockRepository) CountActive(ctx context.Context, now time.Time) (map[string]int, error) {
	cursor, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"expires_at": bson.M{"$gt": now}}}},
		{{Key: "$group", Value: bson.M{"_id": "$resource_type", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ResourceType string `bson:"_id"`
		Count        int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ResourceType] = row.Count
	}
	return counts, nil
}

// claimExpired deletes each candidate that is still expired. Only the caller
// whose delete succeeds gets the lock back, so concurrent sweepers on other
// instances never announce the same expiry twice.
func (r *mongoResourceLockRepository) claimExpired(ctx context.Context, candidates []*model.ResourceLock, now time.Time) ([]*model.ResourceLock, error) {
	var claimed []*model.ResourceLock
	for _, lock := range candidates {
		res, err := r.collection.DeleteOne(ctx, expiredFilter(bson.M{"_id": lock.Key}, now))
		if err != nil {
			return claimed, err
		}
		if res.DeletedCount == 1 {
			claimed = append(claimed, lock)
		}
	}
	return claimed, nil
}

func (r *mongoResourceLockRepository) find(ctx context.Context, filter bson.M) ([]*model.ResourceLock, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var locks []*model.ResourceLock
	if err := cursor.All(ctx, &locks); err != nil {
		return nil, err
	}
	return locks, nil
}

func expiredFilter(filter bson.M, now time.Time) bson.M {
	filter["expires_at"] = bson.M{"$lte": now}
	return filter
}
