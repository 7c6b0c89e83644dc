package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"RefreshSentinel/internal/model"
)

// mongoSymbol is the stored document: one per symbol, keyed by the symbol.
type mongoSymbol struct {
	ID      string            `bson:"_id"`
	Version int64             `bson:"version"`
	State   model.SymbolState `bson:"state"`
}

// MongoStore keeps the registry in a document collection. Compare-and-swap
// is an UpdateOne filtered on both _id and version.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and uses database/collection for the registry.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	log.Info().Str("database", database).Str("collection", collection).Msg("mongodb registry connected")
	return &MongoStore{client: client, coll: client.Database(database).Collection(collection)}, nil
}

// NewMongoStoreFromCollection wraps an existing collection handle.
func NewMongoStoreFromCollection(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (m *MongoStore) Get(ctx context.Context, symbol string) (Entry, error) {
	var doc mongoSymbol
	err := m.coll.FindOne(ctx, bson.M{"_id": model.NormalizeSymbol(symbol)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("find %s: %w", symbol, err)
	}
	return doc.entry(), nil
}

func (m *MongoStore) GetAll(ctx context.Context) ([]Entry, error) {
	cur, err := m.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find symbols: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoSymbol
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}
	out := make([]Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.entry())
	}
	return out, nil
}

func (m *MongoStore) CompareAndSwap(ctx context.Context, symbol string, expectedVersion uint64, next model.SymbolState) (bool, error) {
	sym := model.NormalizeSymbol(symbol)
	next.Symbol = sym
	if next.Boosts == nil {
		next.Boosts = []model.Boost{}
	}
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": sym, "version": int64(expectedVersion)},
		bson.M{"$set": bson.M{"state": next}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", sym, err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	if _, err := m.Get(ctx, sym); err != nil {
		return false, err
	}
	return false, nil
}

func (m *MongoStore) Create(ctx context.Context, state model.SymbolState) error {
	state.Symbol = model.NormalizeSymbol(state.Symbol)
	if state.Boosts == nil {
		state.Boosts = []model.Boost{}
	}
	_, err := m.coll.InsertOne(ctx, mongoSymbol{ID: state.Symbol, Version: 1, State: state})
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", state.Symbol, err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (d mongoSymbol) entry() Entry {
	st := d.State
	st.Symbol = d.ID
	if st.Boosts == nil {
		st.Boosts = []model.Boost{}
	}
	return Entry{State: st, Version: uint64(d.Version)}
}
