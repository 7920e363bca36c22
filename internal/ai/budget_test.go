package ai

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestInMemoryBudget_Unlimited(t *testing.T) {
	b := NewInMemoryBudget(0)
	ctx := context.Background()

	if err := b.Record(ctx, "user1", 1_000_000); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	ok, err := b.Check(ctx, "user1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !ok {
		t.Error("Check() = false, want true (0 means unlimited)")
	}
}

func TestInMemoryBudget_Limits(t *testing.T) {
	tests := []struct {
		name   string
		limit  int64
		record int
		want   bool
	}{
		{"within budget", 1000, 500, true},
		{"over budget", 100, 150, false},
		{"exact budget", 100, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewInMemoryBudget(tt.limit)
			ctx := context.Background()

			if err := b.Record(ctx, "user1", tt.record); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			ok, err := b.Check(ctx, "user1")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("Check() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestInMemoryBudget_NegativeTokens(t *testing.T) {
	b := NewInMemoryBudget(100)
	if err := b.Record(context.Background(), "user1", -5); err == nil {
		t.Error("Record() should reject negative tokens")
	}
}

func TestInMemoryBudget_ResetsDaily(t *testing.T) {
	day := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	b := NewInMemoryBudget(100)
	b.now = func() time.Time { return day }
	ctx := context.Background()

	b.Record(ctx, "user1", 100)
	if ok, _ := b.Check(ctx, "user1"); ok {
		t.Fatal("Check() = true, want false on the spent day")
	}

	day = day.Add(2 * time.Hour)
	if ok, _ := b.Check(ctx, "user1"); !ok {
		t.Error("Check() = false, want true on the next day")
	}
	used, limit, _ := b.Usage(ctx, "user1")
	if used != 0 || limit != 100 {
		t.Errorf("Usage() = %d/%d, want 0/100", used, limit)
	}
}

func TestInMemoryBudget_IsolatesUsers(t *testing.T) {
	b := NewInMemoryBudget(100)
	ctx := context.Background()

	b.Record(ctx, "user1", 100)
	if ok, _ := b.Check(ctx, "user2"); !ok {
		t.Error("user2 should not be charged for user1's usage")
	}
}

func TestRedisBudget(t *testing.T) {
	url := os.Getenv("LEARN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LEARN_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	prefix := "test_" + time.Now().Format("150405.000000") + ":"
	b := NewRedisBudget(client, prefix, 100)
	t.Cleanup(func() {
		client.Del(ctx, b.key("user1"))
	})

	if ok, err := b.Check(ctx, "user1"); err != nil || !ok {
		t.Fatalf("Check() = %v, %v; want true", ok, err)
	}
	if err := b.Record(ctx, "user1", 120); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ok, _ := b.Check(ctx, "user1"); ok {
		t.Error("Check() = true after spending the budget")
	}
	used, limit, err := b.Usage(ctx, "user1")
	if err != nil || used != 120 || limit != 100 {
		t.Errorf("Usage() = %d, %d, %v", used, limit, err)
	}
}
