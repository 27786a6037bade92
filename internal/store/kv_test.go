package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"stock-dashboard/internal/interfaces"
)

// exerciseKV runs the behaviour every token store must share.
func exerciseKV(t *testing.T, kv interfaces.KVStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}

	if err := kv.Set(ctx, "access_token", "tok-1", 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := kv.Set(ctx, "access_token_expiry", "1700000000000", 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	v, ok, err := kv.Get(ctx, "access_token")
	if err != nil || !ok || v != "tok-1" {
		t.Fatalf("Get(access_token) = %q, %v, %v; want tok-1", v, ok, err)
	}

	if err := kv.Set(ctx, "access_token", "tok-2", 0); err != nil {
		t.Fatalf("overwrite returned error: %v", err)
	}
	if v, _, _ := kv.Get(ctx, "access_token"); v != "tok-2" {
		t.Errorf("after overwrite Get = %q, want tok-2", v)
	}

	if err := kv.Delete(ctx, "access_token", "access_token_expiry"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	for _, k := range []string{"access_token", "access_token_expiry"} {
		if _, ok, err := kv.Get(ctx, k); err != nil || ok {
			t.Errorf("Get(%s) after Delete = ok %v, err %v; want absent", k, ok, err)
		}
	}
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "nested", "token.json"))
	if err != nil {
		t.Fatalf("NewFileKV returned error: %v", err)
	}
	exerciseKV(t, kv)
}

func TestFileKVExpiry(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "token.json"))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	ctx := context.Background()
	if err := kv.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); !ok {
		t.Fatal("entry should be present before ttl")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Error("entry should be gone at ttl")
	}
}

func TestFileKVCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, _, err := kv.Get(ctx, "k"); err == nil {
		t.Error("expected error reading corrupt file")
	}
	if err := kv.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set over corrupt file returned error: %v", err)
	}
	if v, ok, err := kv.Get(ctx, "k"); err != nil || !ok || v != "v" {
		t.Errorf("Get after rewrite = %q, %v, %v", v, ok, err)
	}
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "token.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV returned error: %v", err)
	}
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestSQLiteKVExpiry(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "token.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	ctx := context.Background()
	if err := kv.Set(ctx, "k", "v", time.Hour); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Error("expired entry should be absent")
	}
}

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKV(client, "kis:")
	defer kv.Close()

	exerciseKV(t, kv)

	ctx := context.Background()
	if err := kv.Set(ctx, "access_token", "tok", 0); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("kis:access_token") {
		t.Error("expected key to be stored under the kis: prefix")
	}
}

func TestRedisKVTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer kv.Close()

	ctx := context.Background()
	if err := kv.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, err := kv.Get(ctx, "k"); err != nil || ok {
		t.Errorf("Get after ttl = ok %v, err %v; want absent", ok, err)
	}
}

func TestNewTokenStore(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{}
	cfg.Token.Store = "none"
	kv, err := NewTokenStore(ctx, cfg)
	if err != nil || kv != nil {
		t.Errorf("store none = %v, %v; want nil, nil", kv, err)
	}

	cfg.Token.Store = "file"
	cfg.Token.FilePath = filepath.Join(t.TempDir(), "tok.json")
	kv, err = NewTokenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("file store returned error: %v", err)
	}
	if _, ok := kv.(*FileKV); !ok {
		t.Errorf("file store type = %T, want *FileKV", kv)
	}

	mr := miniredis.RunT(t)
	cfg.Token.Store = "redis"
	cfg.Token.RedisAddr = mr.Addr()
	kv, err = NewTokenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("redis store returned error: %v", err)
	}
	defer kv.Close()
	if _, ok := kv.(*RedisKV); !ok {
		t.Errorf("redis store type = %T, want *RedisKV", kv)
	}

	cfg.Token.Store = "etcd"
	if _, err := NewTokenStore(ctx, cfg); err == nil {
		t.Error("expected error for unknown store")
	}
}
