package catalog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"teacher-dashboard-api/models"
)

// Mongo stores one document per chunk, keyed by vector id.
type Mongo struct {
	col *mongo.Collection
}

func NewMongo(col *mongo.Collection) *Mongo {
	return &Mongo{col: col}
}

func (m *Mongo) Save(ctx context.Context, chunks []models.SlideInDB) error {
	if len(chunks) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(chunks))
	for _, c := range chunks {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": c.VectorID}).
			SetReplacement(c).
			SetUpsert(true))
	}
	if _, err := m.col.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("catalog bulk write: %w", err)
	}
	return nil
}

func (m *Mongo) List(ctx context.Context, f Filter) ([]models.SlideInDB, int64, error) {
	query := bson.M{}
	if f.Course != "" {
		query["course_name"] = f.Course
	}
	if f.Subject != "" {
		query["subject_name"] = f.Subject
	}

	total, err := m.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog count: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "chunk_index", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := m.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog find: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.SlideInDB{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("catalog decode: %w", err)
	}
	return items, total, nil
}
