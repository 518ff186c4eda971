package licensestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoPrefix = "cnw_licensing"

// validCollectionName matches safe MongoDB collection name prefixes.
var validCollectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MongoOption configures a MongoStore.
type MongoOption func(*MongoStore)

// WithCollectionPrefix sets the prefix of the two MongoDB collections
// ("<prefix>_licenses" and "<prefix>_activations"). Default: "cnw_licensing".
func WithCollectionPrefix(prefix string) MongoOption {
	return func(s *MongoStore) {
		s.prefix = prefix
	}
}

// MongoStore implements Store using MongoDB.
//
// The single-active-license invariant is enforced by a unique index on
// is_active with a partial filter matching only active documents, so
// concurrent writes of a second active license are rejected atomically
// by the server.
type MongoStore struct {
	licenses    *mongo.Collection
	activations *mongo.Collection
	prefix      string
}

// NewMongoStore creates a new MongoDB-backed store. It creates the
// necessary indexes on initialization.
func NewMongoStore(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoStore, error) {
	s := &MongoStore{
		prefix: defaultMongoPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validCollectionName.MatchString(s.prefix) {
		return nil, fmt.Errorf("invalid collection prefix %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.prefix)
	}
	s.licenses = db.Collection(s.prefix + "_licenses")
	s.activations = db.Collection(s.prefix + "_activations")

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	licenseIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "license_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "is_active", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
	}
	if _, err := s.licenses.Indexes().CreateMany(ctx, licenseIndexes); err != nil {
		return err
	}

	activationIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "license_id", Value: 1},
				{Key: "machine_id", Value: 1},
			},
		},
	}
	_, err := s.activations.Indexes().CreateMany(ctx, activationIndexes)
	return err
}

func (s *MongoStore) InsertLicense(ctx context.Context, lic *License) error {
	if _, err := s.licenses.InsertOne(ctx, lic); err != nil {
		return fmt.Errorf("insert license: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) LicenseByID(ctx context.Context, id string) (*License, error) {
	return s.findLicense(ctx, bson.M{"_id": id})
}

func (s *MongoStore) LicenseByKey(ctx context.Context, keyHex string) (*License, error) {
	return s.findLicense(ctx, bson.M{"license_key": keyHex})
}

func (s *MongoStore) ActiveLicense(ctx context.Context) (*License, error) {
	return s.findLicense(ctx, bson.M{"is_active": true})
}

func (s *MongoStore) findLicense(ctx context.Context, filter bson.M) (*License, error) {
	var lic License
	if err := s.licenses.FindOne(ctx, filter).Decode(&lic); err != nil {
		return nil, fmt.Errorf("find license: %w", mapMongoError(err))
	}
	return &lic, nil
}

func (s *MongoStore) SetLicenseActive(ctx context.Context, id string, active bool) error {
	result, err := s.licenses.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_active": active}})
	if err != nil {
		return fmt.Errorf("update license: %w", mapMongoError(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update license: %w", ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Licenses(ctx context.Context) ([]License, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.licenses.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	var licenses []License
	if err := cursor.All(ctx, &licenses); err != nil {
		return nil, fmt.Errorf("decode licenses: %w", err)
	}
	return licenses, nil
}

func (s *MongoStore) InsertActivation(ctx context.Context, act *Activation) error {
	if _, err := s.activations.InsertOne(ctx, act); err != nil {
		return fmt.Errorf("insert activation: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) ActivationByID(ctx context.Context, id string) (*Activation, error) {
	var act Activation
	if err := s.activations.FindOne(ctx, bson.M{"_id": id}).Decode(&act); err != nil {
		return nil, fmt.Errorf("find activation: %w", mapMongoError(err))
	}
	return &act, nil
}

func (s *MongoStore) Activations(ctx context.Context, licenseID string) ([]Activation, error) {
	return s.findActivations(ctx, bson.M{"license_id": licenseID})
}

func (s *MongoStore) MachineActivations(ctx context.Context, licenseID, machineID string) ([]Activation, error) {
	return s.findActivations(ctx, bson.M{"license_id": licenseID, "machine_id": machineID})
}

func (s *MongoStore) findActivations(ctx context.Context, filter bson.M) ([]Activation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "activated_at", Value: 1}})
	cursor, err := s.activations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	var activations []Activation
	if err := cursor.All(ctx, &activations); err != nil {
		return nil, fmt.Errorf("decode activations: %w", err)
	}
	return activations, nil
}

func (s *MongoStore) DeactivateMachine(ctx context.Context, licenseID, machineID string, at time.Time) (int64, error) {
	filter := bson.M{
		"license_id": licenseID,
		"machine_id": machineID,
		"is_active":  true,
	}
	update := bson.M{"$set": bson.M{
		"is_active":      false,
		"deactivated_at": at,
	}}
	result, err := s.activations.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("deactivate machine: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) Close(_ context.Context) error {
	return nil // user manages the mongo.Database lifecycle
}

// mapMongoError converts driver-level failures to store sentinels where
// a sentinel applies.
func mapMongoError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
