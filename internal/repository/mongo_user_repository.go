package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/stock-image-platform/internal/model"
)

type userDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Email          string             `bson:"email"`
	Username       string             `bson:"username"`
	PhoneNumber    string             `bson:"phoneNumber"`
	PasswordHash   string             `bson:"password"`
	ResetTokenHash string             `bson:"resetPasswordToken,omitempty"`
	ResetExpiresAt *time.Time         `bson:"resetPasswordExpires,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d userDoc) toModel() model.User {
	return model.User{
		ID:             d.ID.Hex(),
		Email:          d.Email,
		Username:       d.Username,
		PhoneNumber:    d.PhoneNumber,
		PasswordHash:   d.PasswordHash,
		ResetTokenHash: d.ResetTokenHash,
		ResetExpiresAt: d.ResetExpiresAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoUserRepo stores users in a MongoDB collection.
type MongoUserRepo struct {
	col *mongo.Collection
}

// NewMongoUserRepo binds the repository to db.collection and makes sure the
// unique email index exists.
func NewMongoUserRepo(ctx context.Context, db *mongo.Database, collection string) (*MongoUserRepo, error) {
	col := db.Collection(collection)
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "resetPasswordToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return nil, err
	}
	return &MongoUserRepo{col: col}, nil
}

func (r *MongoUserRepo) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	doc := userDoc{
		Email:        u.Email,
		Username:     u.Username,
		PhoneNumber:  u.PhoneNumber,
		PasswordHash: u.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid.Hex()
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (r *MongoUserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *MongoUserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoUserRepo) GetByResetToken(ctx context.Context, tokenHash string) (model.User, error) {
	if tokenHash == "" {
		return model.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"resetPasswordToken": tokenHash})
}

func (r *MongoUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"password": passwordHash, "updatedAt": time.Now().UTC()}})
}

func (r *MongoUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, exp time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"resetPasswordToken":   tokenHash,
		"resetPasswordExpires": exp.UTC(),
		"updatedAt":            time.Now().UTC(),
	}})
}

func (r *MongoUserRepo) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	filter := bson.M{
		"_id":                  oid,
		"resetPasswordToken":   tokenHash,
		"resetPasswordExpires": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{
		"$set":   bson.M{"password": passwordHash, "updatedAt": now.UTC()},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepo) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (model.User, error) {
	var d userDoc
	err := r.col.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return d.toModel(), nil
}

func (r *MongoUserRepo) updateByID(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateByID(ctx, oid, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
