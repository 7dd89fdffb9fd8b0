package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/waroenk/commerce/internal/cart"
)

// GuestCartTTL bounds how long an untouched guest cart survives before the
// TTL index reclaims it.
const GuestCartTTL = 30 * 24 * time.Hour

type MongoRepository struct {
	carts        *mongo.Collection
	mergedGuests *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		carts:        db.Collection("carts"),
		mergedGuests: db.Collection("merged_guests"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, ownerKey string) (*cart.Cart, error) {
	var c cart.Cart

	filter := bson.M{"owner_key": ownerKey}
	err := m.carts.FindOne(ctx, filter).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &c, nil
}

func (m *MongoRepository) UpsertCart(ctx context.Context, c *cart.Cart) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	filter := bson.M{"owner_key": c.OwnerKey}
	update := bson.M{"$set": c}
	opts := options.Update().SetUpsert(true)

	if _, err := m.carts.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, ownerKey string) error {
	result, err := m.carts.DeleteOne(ctx, bson.M{"owner_key": ownerKey})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) InvalidateGuest(ctx context.Context, guestKey string) error {
	filter := bson.M{"guest_key": guestKey}
	update := bson.M{"$setOnInsert": bson.M{"guest_key": guestKey, "merged_at": time.Now()}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.mergedGuests.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to invalidate guest: %w", err)
	}
	return nil
}

func (m *MongoRepository) IsGuestInvalidated(ctx context.Context, guestKey string) (bool, error) {
	err := m.mergedGuests.FindOne(ctx, bson.M{"guest_key": guestKey}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check guest tombstone: %w", err)
	}
	return true, nil
}

// CreateIndexes sets up the unique owner index and the TTL index that
// reclaims idle guest carts. expires_at is only set on guest-owned carts, so
// user carts are untouched by the TTL sweep.
func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	cartIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := m.carts.Indexes().CreateMany(ctx, cartIndexes); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	guestIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "guest_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := m.mergedGuests.Indexes().CreateMany(ctx, guestIndexes); err != nil {
		return fmt.Errorf("failed to create merged_guests indexes: %w", err)
	}

	return nil
}
