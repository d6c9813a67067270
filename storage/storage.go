package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Collections used by the jadwal engine.
const (
	CollectionMajors    = "jurusan"
	CollectionClasses   = "kelas"
	CollectionSchedules = "jadwal"
	CollectionTeachers  = "guru"
	CollectionStudents  = "siswa"
)

// Errors
var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

// Filter is an equality condition on a top-level document field.
type Filter struct {
	Field string
	Value interface{}
}

// Eq builds an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Store is a collection-oriented document store. Documents are JSON encoded;
// no operation spans more than one collection.
type Store interface {
	// Create stores a new document and fails with ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, collection, id string, doc interface{}) error

	// Put stores a document, replacing any existing one.
	Put(ctx context.Context, collection, id string, doc interface{}) error

	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error

	// Get returns the raw JSON of a document.
	Get(ctx context.Context, collection, id string) ([]byte, error)

	// Find returns the raw JSON of every document matching all filters, ordered by id.
	Find(ctx context.Context, collection string, filters ...Filter) ([][]byte, error)
}

// ID formats a numeric id as a document id.
func ID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// GetAs fetches and decodes a document.
func GetAs[T any](ctx context.Context, s Store, collection, id string) (T, error) {
	var out T
	data, err := s.Get(ctx, collection, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return out, nil
}

// FindAs fetches and decodes every matching document.
func FindAs[T any](ctx context.Context, s Store, collection string, filters ...Filter) ([]T, error) {
	docs, err := s.Find(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, data := range docs {
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// mergeFields applies a partial update to an encoded document.
func mergeFields(data []byte, fields map[string]interface{}) ([]byte, error) {
	doc, err := decodeDoc(data)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	return json.Marshal(doc)
}

// matches reports whether an encoded document satisfies all filters. Filter
// values go through a JSON round trip so that numbers compare as the decoded
// document holds them.
func matches(data []byte, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	doc, err := decodeDoc(data)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		if !reflect.DeepEqual(doc[f.Field], want) {
			return false, nil
		}
	}
	return true, nil
}

func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeDoc keeps numbers as json.Number so snowflake ids survive a rewrite.
func decodeDoc(data []byte) (map[string]interface{}, error) {
	doc := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// lessID orders numeric ids numerically and everything else lexically.
func lessID(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
