package catalog

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"teacher-dashboard-api/models"
)

func chunk(id string, idx int, course, subject string, created time.Time) models.SlideInDB {
	return models.SlideInDB{
		Slide: models.Slide{
			SlideBase: models.SlideBase{SlideName: models.PartLabel("deck", idx), CourseName: course, SubjectName: subject},
			ID:        fmt.Sprintf("%s_%d", id, idx),
			CreatedAt: created,
			UpdatedAt: created,
		},
		ChunkIndex: idx,
		VectorID:   fmt.Sprintf("%s_%d", id, idx),
		Embedding:  []float32{1, 2},
	}
}

func seed(t *testing.T, c Catalog) {
	t.Helper()
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	require.NoError(t, c.Save(context.Background(), []models.SlideInDB{
		chunk("old", 0, "ML", "Intro", older),
		chunk("old", 1, "ML", "Intro", older),
		chunk("new", 1, "ML", "Trees", newer),
		chunk("new", 0, "ML", "Trees", newer),
		chunk("stats", 0, "Stats", "Intro", older),
	}))
}

func runListCases(t *testing.T, c Catalog) {
	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
		total   int64
	}{
		{"all newest first", Filter{Course: "ML"}, []string{"new_0", "new_1", "old_0", "old_1"}, 4},
		{"subject filter", Filter{Course: "ML", Subject: "Intro"}, []string{"old_0", "old_1"}, 2},
		{"page", Filter{Course: "ML", Limit: 2, Offset: 1}, []string{"new_1", "old_0"}, 4},
		{"offset past end", Filter{Course: "ML", Offset: 10}, []string{}, 4},
		{"no match", Filter{Course: "History"}, []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := c.List(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
			ids := []string{}
			for _, it := range items {
				ids = append(ids, it.VectorID)
				assert.Nil(t, it.Embedding)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMemoryCatalog(t *testing.T) {
	c := NewMemory()
	seed(t, c)
	runListCases(t, c)
}

func TestMemoryCatalogSaveReplaces(t *testing.T) {
	c := NewMemory()
	now := time.Now()
	require.NoError(t, c.Save(context.Background(), []models.SlideInDB{chunk("a", 0, "ML", "x", now)}))
	require.NoError(t, c.Save(context.Background(), []models.SlideInDB{chunk("a", 0, "ML", "y", now)}))

	items, total, err := c.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "y", items[0].SubjectName)
}

func TestMongoCatalog(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database(fmt.Sprintf("catalog_test_%d", time.Now().UnixNano()))
	defer db.Drop(context.Background())

	c := NewMongo(db.Collection("slides"))
	seed(t, c)
	runListCases(t, c)
}
