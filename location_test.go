package main

import (
	"testing"
	"time"
)

func testHuntConfig() huntConfig {
	return huntConfig{
		MaxAccuracyMeters:  100,
		MaxSpeedMPS:        55,
		MinElapsed:         2 * time.Second,
		CatchRadiusMeters:  75,
		ArriveRadiusMeters: 50,
		SpawnTTL:           15 * time.Minute,
		ReservationTTL:     10 * time.Minute,
		SweepInterval:      30 * time.Second,
		TerminalRetention:  time.Hour,
	}
}

func TestFirstLocationAlwaysAccepts(t *testing.T) {
	store := newMemoryStore()
	cfg := testHuntConfig()
	now := time.Now().UTC()

	verdict, err := validateLocation(store, cfg, "wallet-1", "Hunter", 14.5995, 120.9842, 10, now.UnixMilli(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Accepted {
		t.Fatalf("first fix rejected with %s", verdict.Reason)
	}

	stored, err := store.GetLocation("wallet-1")
	if err != nil || stored == nil {
		t.Fatalf("expected stored location, got %v, %v", stored, err)
	}
	if stored.Latitude != 14.5995 || stored.Longitude != 120.9842 {
		t.Fatalf("stored position mismatch: %+v", stored)
	}
}

func TestTeleportRejectedAndPositionUnchanged(t *testing.T) {
	store := newMemoryStore()
	cfg := testHuntConfig()
	t0 := time.Now().UTC()

	if v, err := validateLocation(store, cfg, "wallet-1", "", 14.5995, 120.9842, 10, t0.UnixMilli(), t0); err != nil || !v.Accepted {
		t.Fatalf("seed fix failed: %+v, %v", v, err)
	}

	// ~10.6 km away one second later is far beyond any plausible travel.
	t1 := t0.Add(1000 * time.Millisecond)
	verdict, err := validateLocation(store, cfg, "wallet-1", "", 14.6760, 121.0437, 10, t1.UnixMilli(), t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Accepted {
		t.Fatalf("teleport accepted at %.1f m/s", verdict.SpeedMPS)
	}
	if verdict.Reason != rejectJump {
		t.Fatalf("expected %s, got %s", rejectJump, verdict.Reason)
	}

	stored, _ := store.GetLocation("wallet-1")
	if stored.Latitude != 14.5995 || stored.Longitude != 120.9842 {
		t.Fatalf("rejected update mutated stored position: %+v", stored)
	}
}

func TestLowAccuracyRejectedRegardlessOfDistance(t *testing.T) {
	store := newMemoryStore()
	cfg := testHuntConfig()
	t0 := time.Now().UTC()

	if v, _ := validateLocation(store, cfg, "wallet-1", "", 14.5995, 120.9842, 10, t0.UnixMilli(), t0); !v.Accepted {
		t.Fatalf("seed fix rejected")
	}

	// A 15 m step would pass the jump check easily; accuracy alone rejects.
	t1 := t0.Add(3 * time.Second)
	verdict, err := validateLocation(store, cfg, "wallet-1", "", 14.5996, 120.9843, 150, t1.UnixMilli(), t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Accepted || verdict.Reason != rejectAccuracyTooLow {
		t.Fatalf("expected %s, got %+v", rejectAccuracyTooLow, verdict)
	}

	stored, _ := store.GetLocation("wallet-1")
	if stored.Accuracy != 10 {
		t.Fatalf("rejected update mutated stored accuracy: %+v", stored)
	}
}

func TestAccuracyAtCeilingRejects(t *testing.T) {
	store := newMemoryStore()
	cfg := testHuntConfig()
	now := time.Now().UTC()

	verdict, err := validateLocation(store, cfg, "wallet-1", "", 14.5995, 120.9842, cfg.MaxAccuracyMeters, now.UnixMilli(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Accepted {
		t.Fatalf("accuracy at ceiling should reject")
	}
}

func TestPlausibleMovementAccepts(t *testing.T) {
	store := newMemoryStore()
	cfg := testHuntConfig()
	t0 := time.Now().UTC()

	if v, _ := validateLocation(store, cfg, "wallet-1", "", 14.5995, 120.9842, 10, t0.UnixMilli(), t0); !v.Accepted {
		t.Fatalf("seed fix rejected")
	}

	// ~15 m in 3 s, roughly 5 m/s.
	t1 := t0.Add(3 * time.Second)
	verdict, err := validateLocation(store, cfg, "wallet-1", "", 14.5996, 120.9843, 8, t1.UnixMilli(), t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Accepted {
		t.Fatalf("plausible movement rejected: %+v", verdict)
	}

	stored, _ := store.GetLocation("wallet-1")
	if stored.Latitude != 14.5996 || stored.Longitude != 120.9843 {
		t.Fatalf("accepted update not stored: %+v", stored)
	}
}

func TestRapidPingsUseElapsedFloor(t *testing.T) {
	store := newMemoryStore()
	cfg := testHuntConfig()
	t0 := time.Now().UTC()

	if v, _ := validateLocation(store, cfg, "wallet-1", "", 14.5995, 120.9842, 10, t0.UnixMilli(), t0); !v.Accepted {
		t.Fatalf("seed fix rejected")
	}

	// 15 m half a second later: with the 2 s floor that reads as ~7.7 m/s,
	// not 31 m/s, and passes.
	t1 := t0.Add(500 * time.Millisecond)
	verdict, err := validateLocation(store, cfg, "wallet-1", "", 14.5996, 120.9843, 10, t1.UnixMilli(), t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Accepted {
		t.Fatalf("rapid small step rejected: %+v", verdict)
	}
}

func TestServerTimeIsMonotonicPerWallet(t *testing.T) {
	store := newMemoryStore()
	t0 := time.Now().UTC()

	if err := store.PutLocation(PlayerLocation{WalletAddress: "w", LastUpdateServer: t0}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.PutLocation(PlayerLocation{WalletAddress: "w", LastUpdateServer: t0.Add(-time.Minute)}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	stored, _ := store.GetLocation("w")
	if stored.LastUpdateServer.Before(t0) {
		t.Fatalf("last_update_server went backwards: %v < %v", stored.LastUpdateServer, t0)
	}
}
