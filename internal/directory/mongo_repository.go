package directory

import (
	"context"

	errprocess "civic_message_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDirectory definition user profile lookup
type UserDirectory interface {
	FindByID(ctx context.Context, userID string) (*UserProfile, error)
	SearchByName(ctx context.Context, name string, limit int64) ([]UserProfile, error)
	IsFollowedBy(ctx context.Context, userID, followerID string) (bool, error)
}

type mongoUserDirectory struct {
	usersColl *mongo.Collection
}

// NewMongoUserDirectory create a UserDirectory backed by the users collection
func NewMongoUserDirectory(db *mongo.Database) UserDirectory {
	return &mongoUserDirectory{
		usersColl: db.Collection("users"),
	}
}

// FindByID find one profile by user id
func (r *mongoUserDirectory) FindByID(ctx context.Context, userID string) (*UserProfile, error) {
	var profile UserProfile
	err := r.usersColl.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errprocess.NotFound("user not found")
		}
		return nil, err
	}
	return &profile, nil
}

// SearchByName prefix match on handle or display name
func (r *mongoUserDirectory) SearchByName(ctx context.Context, name string, limit int64) ([]UserProfile, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"handle": bson.M{"$regex": "^" + name, "$options": "i"}},
			{"display_name": bson.M{"$regex": "^" + name, "$options": "i"}},
		},
	}
	cursor, err := r.usersColl.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []UserProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// IsFollowedBy report whether followerID follows userID
func (r *mongoUserDirectory) IsFollowedBy(ctx context.Context, userID, followerID string) (bool, error) {
	count, err := r.usersColl.CountDocuments(ctx, bson.M{
		"_id":       followerID,
		"following": userID,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
