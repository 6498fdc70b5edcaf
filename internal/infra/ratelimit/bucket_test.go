package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketBurstAndRefill(t *testing.T) {
	current := time.Unix(1700000000, 0)
	bucket := newTokenBucket(5, 5, func() time.Time { return current })

	for i := 0; i < 5; i++ {
		if !bucket.TryConsume(1) {
			t.Fatalf("ожидали успешное списание токена %d", i+1)
		}
	}
	if bucket.TryConsume(1) {
		t.Fatal("шестое списание подряд должно было провалиться")
	}

	current = current.Add(time.Second)
	if !bucket.TryConsume(1) {
		t.Fatal("после секунды ожидания токен должен был накопиться")
	}
}

func TestTokenBucketClampsToCapacity(t *testing.T) {
	current := time.Unix(1700000000, 0)
	bucket := newTokenBucket(5, 5, func() time.Time { return current })

	// Долгий простой не должен накопить больше capacity.
	current = current.Add(time.Hour)
	for i := 0; i < 5; i++ {
		if !bucket.TryConsume(1) {
			t.Fatalf("ожидали успешное списание токена %d", i+1)
		}
	}
	if bucket.TryConsume(1) {
		t.Fatal("ведро не должно накапливать сверх ёмкости")
	}
}

func TestTokenBucketReset(t *testing.T) {
	current := time.Unix(1700000000, 0)
	bucket := newTokenBucket(2, 1, func() time.Time { return current })

	if !bucket.TryConsume(2) {
		t.Fatal("ожидали успешное списание")
	}
	if bucket.TryConsume(1) {
		t.Fatal("токены должны быть исчерпаны")
	}
	bucket.Reset()
	if !bucket.TryConsume(2) {
		t.Fatal("после сброса ведро должно быть полным")
	}
}
