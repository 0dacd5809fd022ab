package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemory_Window(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !m.Allow(ctx, "ip", 3, time.Minute) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if m.Allow(ctx, "ip", 3, time.Minute) {
		t.Error("fourth request allowed, want denied")
	}
	if !m.Allow(ctx, "other", 3, time.Minute) {
		t.Error("separate key should have its own window")
	}

	now = now.Add(61 * time.Second)
	if !m.Allow(ctx, "ip", 3, time.Minute) {
		t.Error("request after window denied")
	}
}

func TestMemory_DisabledLimits(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 10; i++ {
		if !m.Allow(context.Background(), "", 1, time.Minute) || !m.Allow(context.Background(), "k", 0, time.Minute) {
			t.Fatal("empty key or zero limit should always allow")
		}
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("APPLYTRACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APPLYTRACK_TEST_REDIS_ADDR not set, skipping Redis test")
	}
	ctx := context.Background()
	l, err := NewRedis(ctx, addr)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer l.Close()

	key := uuid.New().String()
	if !l.Allow(ctx, key, 2, time.Minute) || !l.Allow(ctx, key, 2, time.Minute) {
		t.Fatal("first two requests should be allowed")
	}
	if l.Allow(ctx, key, 2, time.Minute) {
		t.Error("third request allowed, want denied")
	}
}
