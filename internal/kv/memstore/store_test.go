package memstore

import (
	"context"
	"testing"
)

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, found, err := s.Get(ctx, "articles"); err != nil || found {
		t.Fatalf("expected missing key, found=%v err=%v", found, err)
	}

	payload := []byte(`[{"id":"1"}]`)
	if err := s.Set(ctx, "articles", payload); err != nil {
		t.Fatalf("set: %v", err)
	}
	payload[0] = 'x'

	got, found, err := s.Get(ctx, "articles")
	if err != nil || !found {
		t.Fatalf("expected stored key, found=%v err=%v", found, err)
	}
	if string(got) != `[{"id":"1"}]` {
		t.Fatalf("unexpected value %s", got)
	}

	got[0] = 'y'
	again, _, _ := s.Get(ctx, "articles")
	if string(again) != `[{"id":"1"}]` {
		t.Fatalf("stored value mutated through returned slice: %s", again)
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	if err := New().Set(context.Background(), "../etc", []byte(`{}`)); err == nil {
		t.Fatalf("expected invalid key error")
	}
}
