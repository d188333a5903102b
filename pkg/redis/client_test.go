package redis

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockCmdable struct {
	values map[string]string
	scores map[string]map[string]float64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		values: map[string]string{},
		scores: map[string]map[string]float64{},
	}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.values[key] = toString(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	value, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, exists := m.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = toString(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := m.scores[key]
	if !ok {
		set = map[string]float64{}
		m.scores[key] = set
	}
	var added int64
	for _, member := range members {
		name := member.Member.(string)
		if _, exists := set[name]; !exists {
			added++
		}
		set[name] = member.Score
	}
	return redis.NewIntResult(added, nil)
}

func (m *mockCmdable) ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	set := m.scores[key]
	var removed int64
	for _, member := range members {
		name := member.(string)
		if _, ok := set[name]; ok {
			delete(set, name)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) ZRangeByScore(ctx context.Context, key string, rng *redis.ZRangeBy) *redis.StringSliceCmd {
	set := m.scores[key]
	max, err := strconv.ParseFloat(rng.Max, 64)
	if err != nil {
		max = float64(1<<62) - 1
	}
	var out []string
	for member, score := range set {
		if score <= max {
			out = append(out, member)
		}
	}
	sort.Strings(out)
	return redis.NewStringSliceResult(out, nil)
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func TestIdempotencyDedup(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.IdempotencyKey("realtime", "msg-1")
	first, err := client.SetNX(ctx, key, "1", time.Minute)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if !first {
		t.Fatal("expected first write to win")
	}
	second, err := client.SetNX(ctx, key, "1", time.Minute)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if second {
		t.Fatal("duplicate message should not win")
	}
}

func TestActivityIndex(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := client.TouchActivity(ctx, "sess-old", now.Add(-25*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := client.TouchActivity(ctx, "sess-live", now.Add(-time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	idle, err := client.IdleSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("idle sessions: %v", err)
	}
	if len(idle) != 1 || idle[0] != "sess-old" {
		t.Fatalf("expected only sess-old idle, got %v", idle)
	}

	if err := client.ForgetActivity(ctx, "sess-old"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	idle, err = client.IdleSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("idle sessions: %v", err)
	}
	if len(idle) != 0 {
		t.Fatalf("expected empty idle set, got %v", idle)
	}
}

func TestTouchActivityRefreshesScore(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := client.TouchActivity(ctx, "sess-1", now.Add(-25*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := client.TouchActivity(ctx, "sess-1", now); err != nil {
		t.Fatalf("touch: %v", err)
	}

	idle, err := client.IdleSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("idle sessions: %v", err)
	}
	if len(idle) != 0 {
		t.Fatalf("touched session should not be idle, got %v", idle)
	}
}
