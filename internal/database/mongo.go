package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectMongo dials MongoDB and pings the primary before handing back the
// database handle.  The caller owns the client and disconnects it on shutdown.
func ConnectMongo(uri, dbName string, log *zap.Logger) (*mongo.Database, *mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Error("mongodb connection failed", zap.Error(err))
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Error("mongodb ping failed", zap.Error(err))
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	log.Info("mongodb connected", zap.String("db", dbName))
	return client.Database(dbName), client, nil
}
