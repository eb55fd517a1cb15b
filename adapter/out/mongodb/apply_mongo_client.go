// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewClient creates a new MongoDB client.
func NewClient(url, database string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(url).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

// indexEnsurer is implemented by every adapter with collection indexes.
type indexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureAllIndexes runs index creation across the given adapters.
func EnsureAllIndexes(ctx context.Context, adapters ...indexEnsurer) error {
	for _, a := range adapters {
		if err := a.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}
