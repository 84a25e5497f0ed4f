package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatalf("expected absent")
	}
	if err := m.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, found, err := m.Get(ctx, "k")
	if err != nil || !found || v != "v" {
		t.Fatalf("get = %q, %v, %v", v, found, err)
	}
	if err := m.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatalf("expected deleted")
	}
}

func TestMemoryExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	m.Now = func() time.Time { return now }

	_ = m.Set(ctx, "k", "v")
	_ = m.Expire(ctx, "k", time.Minute)

	if _, found, _ := m.Get(ctx, "k"); !found {
		t.Fatalf("expected present before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatalf("expected expired")
	}
}

func TestMemorySets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.SAdd(ctx, "s", "a", "b", "a")
	n, err := m.SCard(ctx, "s")
	if err != nil || n != 2 {
		t.Fatalf("scard = %d, %v", n, err)
	}
	members, _ := m.SMembers(ctx, "s")
	if len(members) != 2 {
		t.Fatalf("members = %v", members)
	}
	_ = m.SRem(ctx, "s", "a")
	if n, _ := m.SCard(ctx, "s"); n != 1 {
		t.Fatalf("scard after srem = %d", n)
	}
}
