package testsupport

import (
	"context"
	"testing"
)

func TestRedisClientIsCleanedBetweenTests(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	configs := LoadDatabaseConfigsFromEnv(t)
	client := NewRedisClient(t, configs.Redis)

	// FlushDB in the helper ran before this point, so the key cannot
	// have leaked from a previous test.
	if n, err := client.Exists(context.Background(), "cleanup-probe").Result(); err != nil || n != 0 {
		t.Fatalf("expected empty database, exists=%d err=%v", n, err)
	}

	if err := client.Set(context.Background(), "cleanup-probe", "set-by-test", 0).Err(); err != nil {
		t.Fatalf("failed to set key: %v", err)
	}

	val, err := client.Get(context.Background(), "cleanup-probe").Result()
	if err != nil {
		t.Fatalf("failed to get key: %v", err)
	}
	if val != "set-by-test" {
		t.Fatalf("unexpected redis value: %s", val)
	}
}
