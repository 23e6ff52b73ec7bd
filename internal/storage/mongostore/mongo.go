// Package mongostore provides the MongoDB storage backend. Rows live in a
// single collection keyed by partition plus sort key, with a compound index
// supporting ordered range scans per partition.
package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attrix/internal/storage"
)

type rowDoc struct {
	ID        string `bson:"_id"`
	Partition string `bson:"partition"`
	SortKey   string `bson:"sort_key"`
	Value     []byte `bson:"value"`
}

// Store is a Store backed by a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// New connects to MongoDB and ensures the scan index exists.
func New(ctx context.Context, uri, dbName, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	s := &Store{
		client: client,
		coll:   client.Database(dbName).Collection(collection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "partition", Value: 1}, {Key: "sort_key", Value: 1}},
	})
	return err
}

func docID(key storage.Key) string {
	return key.Partition + "\x00" + key.SortKey
}

func (s *Store) Get(ctx context.Context, key storage.Key) (storage.Row, error) {
	var doc rowDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": docID(key)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return storage.Row{}, storage.ErrRowNotFound
		}
		return storage.Row{}, err
	}
	return storage.Row{Partition: doc.Partition, SortKey: doc.SortKey, Value: doc.Value}, nil
}

func (s *Store) Put(ctx context.Context, row storage.Row) error {
	doc := rowDoc{
		ID:        docID(storage.Key{Partition: row.Partition, SortKey: row.SortKey}),
		Partition: row.Partition,
		SortKey:   row.SortKey,
		Value:     row.Value,
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) Delete(ctx context.Context, key storage.Key) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": docID(key)})
	return err
}

func (s *Store) Scan(ctx context.Context, partition string, opts storage.ScanOptions) ([]storage.Row, error) {
	cond := bson.M{}
	if opts.Prefix != "" {
		cond["$gte"] = opts.Prefix
		cond["$lt"] = opts.Prefix + "\xff\xff\xff\xff"
	}
	if opts.Start != "" {
		cond["$gte"] = opts.Start
	}
	if opts.End != "" {
		cond["$lte"] = opts.End
	}
	if opts.StartAfter != "" {
		if opts.Reverse {
			cond["$lt"] = opts.StartAfter
		} else {
			cond["$gt"] = opts.StartAfter
		}
	}

	filter := bson.M{"partition": partition}
	if len(cond) > 0 {
		filter["sort_key"] = cond
	}

	order := 1
	if opts.Reverse {
		order = -1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "sort_key", Value: order}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []storage.Row
	for cursor.Next(ctx) {
		var doc rowDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, storage.Row{Partition: doc.Partition, SortKey: doc.SortKey, Value: doc.Value})
	}
	return rows, cursor.Err()
}

func (s *Store) Apply(ctx context.Context, muts []storage.Mutation) error {
	if len(muts) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(muts))
	for _, m := range muts {
		switch {
		case m.Put != nil:
			doc := rowDoc{
				ID:        docID(storage.Key{Partition: m.Put.Partition, SortKey: m.Put.SortKey}),
				Partition: m.Put.Partition,
				SortKey:   m.Put.SortKey,
				Value:     m.Put.Value,
			}
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": doc.ID}).SetReplacement(doc).SetUpsert(true))
		case m.Delete != nil:
			models = append(models, mongo.NewDeleteOneModel().
				SetFilter(bson.M{"_id": docID(*m.Delete)}))
		}
	}
	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
