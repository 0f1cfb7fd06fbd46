package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/stock-image-platform/internal/model"
)

type imageDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       string             `bson:"userId"`
	Title        string             `bson:"title"`
	ImageURL     string             `bson:"imageUrl"`
	ThumbnailURL string             `bson:"thumbnailUrl,omitempty"`
	ContentType  string             `bson:"contentType"`
	SizeBytes    int64              `bson:"size"`
	Width        int                `bson:"width"`
	Height       int                `bson:"height"`
	Order        int                `bson:"order"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d imageDoc) toModel() model.Image {
	return model.Image{
		ID:           d.ID.Hex(),
		UserID:       d.UserID,
		Title:        d.Title,
		ImageURL:     d.ImageURL,
		ThumbnailURL: d.ThumbnailURL,
		ContentType:  d.ContentType,
		SizeBytes:    d.SizeBytes,
		Width:        d.Width,
		Height:       d.Height,
		Order:        d.Order,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// listSort is the display order with its deterministic tie-break.
var listSort = bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// MongoImageRepo stores images in a MongoDB collection.
type MongoImageRepo struct {
	col *mongo.Collection
}

// NewMongoImageRepo binds the repository to db.collection and creates the
// compound index that serves both listing and max-order lookups.
func NewMongoImageRepo(ctx context.Context, db *mongo.Database, collection string) (*MongoImageRepo, error) {
	col := db.Collection(collection)
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "order", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoImageRepo{col: col}, nil
}

func (r *MongoImageRepo) InsertBatch(ctx context.Context, images []model.Image) ([]model.Image, error) {
	if len(images) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(images))
	for i, img := range images {
		docs[i] = imageDoc{
			ID:           primitive.NewObjectID(),
			UserID:       img.UserID,
			Title:        img.Title,
			ImageURL:     img.ImageURL,
			ThumbnailURL: img.ThumbnailURL,
			ContentType:  img.ContentType,
			SizeBytes:    img.SizeBytes,
			Width:        img.Width,
			Height:       img.Height,
			Order:        img.Order,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	if _, err := r.col.InsertMany(ctx, docs); err != nil {
		return nil, err
	}
	out := make([]model.Image, len(docs))
	for i, d := range docs {
		out[i] = d.(imageDoc).toModel()
	}
	return out, nil
}

func (r *MongoImageRepo) MaxOrder(ctx context.Context, userID string) (int, bool, error) {
	var d imageDoc
	opts := options.FindOne().
		SetSort(bson.D{{Key: "order", Value: -1}}).
		SetProjection(bson.M{"order": 1})
	err := r.col.FindOne(ctx, bson.M{"userId": userID}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return d.Order, true, nil
}

func (r *MongoImageRepo) ListByUser(ctx context.Context, userID string) ([]model.Image, error) {
	cur, err := r.col.Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(listSort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []model.Image{}
	for cur.Next(ctx) {
		var d imageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toModel())
	}
	return out, cur.Err()
}

func (r *MongoImageRepo) GetByID(ctx context.Context, id string) (model.Image, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Image{}, ErrNotFound
	}
	var d imageDoc
	err = r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Image{}, ErrNotFound
	}
	if err != nil {
		return model.Image{}, err
	}
	return d.toModel(), nil
}

func (r *MongoImageRepo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Reorder checks ownership of every id with one count, then sends all
// order changes as a single ordered BulkWrite.  Standalone MongoDB has no
// multi-document transactions, so a failure inside the bulk write can leave
// earlier updates applied; the caller sees one error either way.
func (r *MongoImageRepo) Reorder(ctx context.Context, userID string, updates []model.OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	oids := make([]primitive.ObjectID, len(updates))
	for i, u := range updates {
		oid, err := primitive.ObjectIDFromHex(u.ID)
		if err != nil {
			return ErrNotFound
		}
		oids[i] = oid
	}
	owned, err := r.col.CountDocuments(ctx, bson.M{"userId": userID, "_id": bson.M{"$in": oids}})
	if err != nil {
		return err
	}
	if owned != int64(len(oids)) {
		return ErrNotFound
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, len(updates))
	for i, u := range updates {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": oids[i], "userId": userID}).
			SetUpdate(bson.M{"$set": bson.M{"order": u.Order, "updatedAt": now}})
	}
	_, err = r.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func (r *MongoImageRepo) UpdateTitle(ctx context.Context, id, title string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"title": title, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoImageRepo) Update(ctx context.Context, img model.Image) (model.Image, error) {
	oid, err := primitive.ObjectIDFromHex(img.ID)
	if err != nil {
		return model.Image{}, ErrNotFound
	}
	set := bson.M{
		"title":       img.Title,
		"imageUrl":    img.ImageURL,
		"contentType": img.ContentType,
		"size":        img.SizeBytes,
		"width":       img.Width,
		"height":      img.Height,
		"updatedAt":   time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if img.ThumbnailURL != "" {
		set["thumbnailUrl"] = img.ThumbnailURL
	} else {
		update["$unset"] = bson.M{"thumbnailUrl": ""}
	}
	var d imageDoc
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Image{}, ErrNotFound
	}
	if err != nil {
		return model.Image{}, err
	}
	return d.toModel(), nil
}
