package main

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func availableSpawn(id string, expiresAt time.Time) SpawnRecord {
	return SpawnRecord{
		SpawnID:     id,
		Latitude:    14.5995,
		Longitude:   120.9842,
		Rarity:      "common",
		CreatedAt:   expiresAt.Add(-15 * time.Minute),
		ExpiresAt:   expiresAt,
		ClaimStatus: spawnAvailable,
	}
}

func TestConcurrentClaimsYieldOneWinner(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()
	if err := store.CreateSpawn(availableSpawn("spawn-1", now.Add(10*time.Minute))); err != nil {
		t.Fatalf("create spawn failed: %v", err)
	}

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.ClaimSpawn("spawn-1", "wallet-"+string(rune('a'+n)), 80, now)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, errSpawnConflict):
			conflicts++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}

	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", attempts-1, successes, conflicts)
	}
}

func TestClaimingExpiredSpawnFailsWithoutSweep(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()
	// Expired a minute ago but never swept.
	if err := store.CreateSpawn(availableSpawn("spawn-1", now.Add(-time.Minute))); err != nil {
		t.Fatalf("create spawn failed: %v", err)
	}

	_, err := store.ClaimSpawn("spawn-1", "wallet-1", 80, now)
	if !errors.Is(err, errSpawnConflict) {
		t.Fatalf("expected conflict on expired spawn, got %v", err)
	}
}

func TestClaimingUnknownSpawnIsNotFound(t *testing.T) {
	store := newMemoryStore()
	_, err := store.ClaimSpawn("nope", "wallet-1", 80, time.Now().UTC())
	if !errors.Is(err, errNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimedSpawnCarriesWinnerDetails(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()
	if err := store.CreateSpawn(availableSpawn("spawn-1", now.Add(10*time.Minute))); err != nil {
		t.Fatalf("create spawn failed: %v", err)
	}

	claimed, err := store.ClaimSpawn("spawn-1", "wallet-1", 92, now)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.ClaimStatus != spawnClaimed || claimed.ClaimedBy != "wallet-1" || claimed.CatchQuality != 92 {
		t.Fatalf("claimed record incomplete: %+v", claimed)
	}
	if claimed.ClaimedAt == nil || !claimed.ClaimedAt.Equal(now) {
		t.Fatalf("claimedAt not set: %+v", claimed.ClaimedAt)
	}
}

func TestSweepTransitionsExpiredSpawns(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()
	store.CreateSpawn(availableSpawn("fresh", now.Add(10*time.Minute)))
	store.CreateSpawn(availableSpawn("stale-1", now.Add(-time.Minute)))
	store.CreateSpawn(availableSpawn("stale-2", now.Add(-time.Hour)))

	swept, err := store.SweepExpiredSpawns(now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 2 {
		t.Fatalf("expected 2 swept, got %d", swept)
	}

	stale, _ := store.GetSpawn("stale-1")
	if stale.ClaimStatus != spawnExpired {
		t.Fatalf("stale spawn not expired: %s", stale.ClaimStatus)
	}
	fresh, _ := store.GetSpawn("fresh")
	if fresh.ClaimStatus != spawnAvailable {
		t.Fatalf("fresh spawn altered by sweep: %s", fresh.ClaimStatus)
	}

	// Sweeping again is a no-op; terminal states stay terminal.
	swept, _ = store.SweepExpiredSpawns(now)
	if swept != 0 {
		t.Fatalf("second sweep changed %d records", swept)
	}
}

func TestPurgeRemovesOnlyOldTerminalSpawns(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()
	store.CreateSpawn(availableSpawn("live", now.Add(10*time.Minute)))
	store.CreateSpawn(availableSpawn("old-expired", now.Add(-2*time.Hour)))
	store.SweepExpiredSpawns(now)

	purged, err := store.PurgeTerminalSpawns(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	if _, err := store.GetSpawn("old-expired"); !errors.Is(err, errNotFound) {
		t.Fatalf("expected old spawn gone, got %v", err)
	}
	if _, err := store.GetSpawn("live"); err != nil {
		t.Fatalf("live spawn purged: %v", err)
	}
}

func TestNearbyFiltersByRadiusAndStatus(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()

	near := availableSpawn("near", now.Add(10*time.Minute))
	store.CreateSpawn(near)

	far := availableSpawn("far", now.Add(10*time.Minute))
	far.Latitude = 14.6760
	far.Longitude = 121.0437
	store.CreateSpawn(far)

	claimed := availableSpawn("claimed", now.Add(10*time.Minute))
	store.CreateSpawn(claimed)
	if _, err := store.ClaimSpawn("claimed", "wallet-1", 50, now); err != nil {
		t.Fatalf("setup claim failed: %v", err)
	}

	results, err := store.NearbySpawns(14.5995, 120.9842, 500, now)
	if err != nil {
		t.Fatalf("nearby failed: %v", err)
	}
	if len(results) != 1 || results[0].SpawnID != "near" {
		t.Fatalf("expected only the near available spawn, got %+v", results)
	}
}

func TestWipeClearsHuntData(t *testing.T) {
	store := newMemoryStore()
	now := time.Now().UTC()
	store.CreateSpawn(availableSpawn("spawn-1", now.Add(10*time.Minute)))
	store.PutLocation(PlayerLocation{WalletAddress: "w", LastUpdateServer: now})
	store.CreateNode(MapNode{NodeID: "node-1", CreatedAt: now})

	if err := store.WipeHuntData(); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}
	if _, err := store.GetSpawn("spawn-1"); !errors.Is(err, errNotFound) {
		t.Fatalf("spawn survived wipe")
	}
	if loc, _ := store.GetLocation("w"); loc != nil {
		t.Fatalf("location survived wipe")
	}
	if _, err := store.GetNode("node-1"); !errors.Is(err, errNotFound) {
		t.Fatalf("node survived wipe")
	}
}
