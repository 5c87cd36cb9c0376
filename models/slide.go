package models

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultContentType is recorded when the upload carries no Content-Type.
const DefaultContentType = "application/octet-stream"

// SlideBase holds the fields a teacher supplies with an upload.
type SlideBase struct {
	SlideName   string `bson:"slide_name" json:"slide_name"`
	CourseName  string `bson:"course_name" json:"course_name"`
	SubjectName string `bson:"subject_name" json:"subject_name"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// Slide is the stored form of an uploaded slide deck.
type Slide struct {
	SlideBase   `bson:",inline"`
	ID          string    `bson:"_id" json:"id"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
	FileName    string    `bson:"file_name,omitempty" json:"file_name,omitempty"`
	ContentType string    `bson:"content_type" json:"content_type"`
}

// SlideInDB is one chunk of a slide as written to the vector index.
// ID and VectorID are the same "<uuid>_<chunk_index>" value.
type SlideInDB struct {
	Slide       `bson:",inline"`
	ChunkIndex  int       `bson:"chunk_index" json:"chunk_index"`
	TotalChunks int       `bson:"total_chunks" json:"total_chunks"`
	VectorID    string    `bson:"vector_id" json:"vector_id"`
	Text        string    `bson:"text,omitempty" json:"text,omitempty"`
	Page        int       `bson:"page,omitempty" json:"page,omitempty"`
	FileHash    string    `bson:"file_hash,omitempty" json:"file_hash,omitempty"`
	Embedding   []float32 `bson:"-" json:"embedding,omitempty"`
	Score       *float64  `bson:"-" json:"score,omitempty"`
}

// PartLabel is the per-chunk slide name: "<name> (Part i+1)".
func PartLabel(name string, index int) string {
	return fmt.Sprintf("%s (Part %d)", name, index+1)
}

// PartDescription is the per-chunk description: "<description> [Part i+1 of N]".
func PartDescription(description string, index, total int) string {
	return fmt.Sprintf("%s [Part %d of %d]", description, index+1, total)
}

// Metadata is the flat map stored alongside the vector.
func (s *SlideInDB) Metadata() map[string]any {
	meta := map[string]any{
		"slide_name":   s.SlideName,
		"course_name":  s.CourseName,
		"subject_name": s.SubjectName,
		"description":  s.Description,
		"created_at":   s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"file_name":    s.FileName,
		"content_type": s.ContentType,
		"chunk_index":  s.ChunkIndex,
		"total_chunks": s.TotalChunks,
		"text":         s.Text,
	}
	if s.Page > 0 {
		meta["page"] = s.Page
	}
	if s.FileHash != "" {
		meta["file_hash"] = s.FileHash
	}
	return meta
}

// SlideFromMetadata rebuilds a chunk record from a vector id and its metadata.
// Numbers may arrive as float64 (JSON) or as Go ints (in-process stores).
func SlideFromMetadata(id string, meta map[string]any, values []float32) SlideInDB {
	s := SlideInDB{
		Slide: Slide{
			SlideBase: SlideBase{
				SlideName:   stringField(meta, "slide_name"),
				CourseName:  stringField(meta, "course_name"),
				SubjectName: stringField(meta, "subject_name"),
				Description: stringField(meta, "description"),
			},
			ID:          id,
			CreatedAt:   timeField(meta, "created_at"),
			UpdatedAt:   timeField(meta, "updated_at"),
			FileName:    stringField(meta, "file_name"),
			ContentType: stringField(meta, "content_type"),
		},
		ChunkIndex:  intField(meta, "chunk_index"),
		TotalChunks: intField(meta, "total_chunks"),
		VectorID:    id,
		Text:        stringField(meta, "text"),
		Page:        intField(meta, "page"),
		FileHash:    stringField(meta, "file_hash"),
		Embedding:   values,
	}
	if s.ContentType == "" {
		s.ContentType = DefaultContentType
	}
	return s
}

func stringField(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func intField(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func timeField(meta map[string]any, key string) time.Time {
	switch v := meta[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
