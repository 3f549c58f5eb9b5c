package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

const evalCollection = "evaluations"

type evalDocument struct {
	Key       string    `bson:"_id"`
	FEN       string    `bson:"fen"`
	Payload   string    `bson:"payload"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoEvalCache is the durable evaluation cache. Documents carry an
// expiry that a TTL index enforces; expired documents that were not yet
// removed are treated as misses.
type MongoEvalCache struct {
	collection *mongo.Collection
	ttl        time.Duration
	now        func() time.Time
}

func NewMongoEvalCache(collection *mongo.Collection, ttl time.Duration) *MongoEvalCache {
	return &MongoEvalCache{collection: collection, ttl: ttl, now: time.Now}
}

// NewMongoEvalCacheFromDatabase uses the evaluations collection of db.
func NewMongoEvalCacheFromDatabase(db *mongo.Database, ttl time.Duration) *MongoEvalCache {
	return NewMongoEvalCache(db.Collection(evalCollection), ttl)
}

func (m *MongoEvalCache) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (m *MongoEvalCache) Get(ctx context.Context, key string) (analysis.AnalysisResult, error) {
	var doc evalDocument
	err := m.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return analysis.AnalysisResult{}, apperrors.ErrCacheMiss
		}
		return analysis.AnalysisResult{}, err
	}
	if !doc.ExpiresAt.IsZero() && m.now().After(doc.ExpiresAt) {
		return analysis.AnalysisResult{}, apperrors.ErrCacheMiss
	}

	var result analysis.AnalysisResult
	if err := json.Unmarshal([]byte(doc.Payload), &result); err != nil {
		return analysis.AnalysisResult{}, err
	}
	return result, nil
}

func (m *MongoEvalCache) Set(ctx context.Context, key string, result analysis.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	doc := evalDocument{
		Key:       key,
		FEN:       result.Position.FEN,
		Payload:   string(payload),
		ExpiresAt: m.now().Add(m.ttl),
	}
	_, err = m.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, doc, options.Replace().SetUpsert(true))
	return err
}
