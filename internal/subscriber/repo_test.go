package subscriber

import (
	"context"
	"testing"
	"time"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
	"github.com/DanielDenysevych/birthday-surprise/internal/kv"
)

func newTestRepo() (*Repo, *kv.Memory) {
	store := kv.NewMemory()
	return NewRepo(store), store
}

func sub(id, name, phone string) domain.Subscriber {
	return domain.Subscriber{
		ID:        id,
		Name:      name,
		Phone:     phone,
		Status:    domain.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndFindByPhone(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()

	created, err := repo.Create(ctx, sub("sub_1", "Ann", "+15551234567"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "sub_1" {
		t.Fatalf("created id = %q", created.ID)
	}

	got, found, err := repo.FindByPhone(ctx, "+15551234567")
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if got.Name != "Ann" {
		t.Fatalf("found name = %q", got.Name)
	}

	if _, found, _ := repo.FindByPhone(ctx, "+15550000000"); found {
		t.Fatalf("expected absent phone to not resolve")
	}
}

func TestCreateRejectsDuplicatePhone(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()

	if _, err := repo.Create(ctx, sub("sub_1", "Ann", "+15551234567")); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.Create(ctx, sub("sub_2", "Bob", "+15551234567"))
	if err != domain.ErrDuplicatePhone {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestListActiveFiltersAndSkipsBrokenEntries(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo()

	_, _ = repo.Create(ctx, sub("sub_1", "Ann", "+15551111111"))
	_, _ = repo.Create(ctx, sub("sub_2", "Bob", "+15552222222"))

	inactive := sub("sub_3", "Cat", "+15553333333")
	inactive.Status = domain.StatusInactive
	_, _ = repo.Create(ctx, inactive)

	// Dangling membership entry whose record was deleted out from under
	// the index. Must be skipped silently.
	_ = store.SAdd(ctx, indexKey, "sub_gone")

	subs, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 active subscribers, got %d", len(subs))
	}
	for _, s := range subs {
		if s.Status != domain.StatusActive {
			t.Fatalf("inactive subscriber %s in active list", s.ID)
		}
	}

	// The dangling entry is repaired out of the index on read.
	if n, _ := repo.Count(ctx); n != 3 {
		t.Fatalf("count after repair = %d, want 3", n)
	}
	members, _ := store.SMembers(ctx, indexKey)
	for _, id := range members {
		if id == "sub_gone" {
			t.Fatalf("dangling entry still indexed: %v", members)
		}
	}
}

func TestRecordDelivery(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()

	_, _ = repo.Create(ctx, sub("sub_1", "Ann", "+15551234567"))

	at := time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := repo.RecordDelivery(ctx, "sub_1", at); err != nil {
		t.Fatalf("record delivery: %v", err)
	}
	if err := repo.RecordDelivery(ctx, "sub_1", at.Add(time.Hour)); err != nil {
		t.Fatalf("record delivery again: %v", err)
	}

	got, _, _ := repo.FindByPhone(ctx, "+15551234567")
	if got.NotificationsSent != 2 {
		t.Fatalf("notificationsSent = %d, want 2", got.NotificationsSent)
	}
	if got.LastNotificationSent == nil || !got.LastNotificationSent.Equal(at.Add(time.Hour)) {
		t.Fatalf("lastNotificationSent = %v", got.LastNotificationSent)
	}
}

func TestRecordDeliveryUnknownSubscriber(t *testing.T) {
	repo, _ := newTestRepo()
	if err := repo.RecordDelivery(context.Background(), "sub_missing", time.Now()); err == nil {
		t.Fatalf("expected error for unknown subscriber")
	}
}

func TestCountAndClear(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo()

	_, _ = repo.Create(ctx, sub("sub_1", "Ann", "+15551111111"))
	_, _ = repo.Create(ctx, sub("sub_2", "Bob", "+15552222222"))

	n, err := repo.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	deleted, err := repo.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if deleted == 0 {
		t.Fatalf("expected deleted keys")
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Fatalf("count after clear = %d", n)
	}
	if _, found, _ := repo.FindByPhone(ctx, "+15551111111"); found {
		t.Fatalf("expected phone index cleared")
	}
}
