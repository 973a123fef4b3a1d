package kv

import (
	"context"
	"errors"
	"testing"
)

type recordV1 struct {
	Skill string  `json:"skill"`
	P     float64 `json:"p"`
}

type recordV2 struct {
	Skill        string  `json:"skill"`
	P            float64 `json:"p"`
	Observations int     `json:"observations,omitempty"`
}

func TestKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"bkt", "mastery", "u1"}, "bkt:mastery:u1"},
		{[]string{"bkt", " ", "u1"}, "bkt:u1"},
		{[]string{"feedback", "history"}, "feedback:history"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Key(tt.parts...); got != tt.want {
			t.Errorf("Key(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestMemoryStoreLoadDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := Load(ctx, s, "missing", []recordV1{{Skill: "def"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Skill != "def" {
		t.Fatalf("expected default, got %+v", got)
	}
}

func TestMemoryStoreOlderRecordsReadWithDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k", []recordV1{{Skill: "css-grid", P: 0.4}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := Load(ctx, s, "k", []recordV2(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Skill != "css-grid" || got[0].P != 0.4 || got[0].Observations != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestMemoryStoreIsolatesWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := &recordV1{Skill: "a", P: 0.1}
	if err := s.Set(ctx, "k", rec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	rec.P = 0.9
	var got recordV1
	if _, err := s.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.P != 0.1 {
		t.Fatalf("stored value aliased caller memory: %+v", got)
	}
}

func TestMemoryStoreEmptyKey(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Set(context.Background(), " ", 1); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := s.Get(context.Background(), "", new(int)); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"bkt:mastery:b", "bkt:mastery:a", "memory:a"} {
		if err := s.Set(ctx, k, 1); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	got := s.Keys("bkt:")
	if len(got) != 2 || got[0] != "bkt:mastery:a" || got[1] != "bkt:mastery:b" {
		t.Fatalf("Keys = %v", got)
	}
}
