//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/netcut/pkg/shape"
)

// Run with: NETCUT_MONGO_URI=mongodb://localhost:27017 go test -tags integration ./pkg/store/
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("NETCUT_MONGO_URI")
	if uri == "" {
		t.Skip("NETCUT_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := OpenMongoStore(ctx, MongoOptions{
		URI:        uri,
		Database:   "netcut_test",
		Collection: fmt.Sprintf("weights_%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = s.coll.Drop(context.Background())
		_ = s.Close(context.Background())
	}()

	w := NewFloat32([]int64{2}, []float32{1, 2})
	if err := s.Put(ctx, "w", w); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "b", NewInt64([]int64{1}, []int64{3})); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get(ctx, "w")
	if err != nil || !ok {
		t.Fatalf("Get(w) = %v, %v", ok, err)
	}
	if !slices.Equal(got.Data, w.Data) {
		t.Errorf("data = %v, want %v", got.Data, w.Data)
	}

	sh, ok, err := s.Info(ctx, "w")
	if err != nil || !ok || !sh.Equal(shape.Of(shape.DTypeFloat32, 2)) {
		t.Errorf("Info(w) = %v, %v, %v", sh, ok, err)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("missing tensor reported present")
	}

	if err := s.DeleteAll(ctx, []string{"w", "b"}); err != nil {
		t.Fatal(err)
	}
	names, err := s.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("Names() = %v after DeleteAll", names)
	}
}
