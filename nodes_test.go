package main

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func seedNode(t *testing.T, store *memoryStore, nodeID string) MapNode {
	t.Helper()
	node := MapNode{
		NodeID:    nodeID,
		Latitude:  14.5995,
		Longitude: 120.9842,
		NodeType:  "resource",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateNode(node); err != nil {
		t.Fatalf("create node failed: %v", err)
	}
	return node
}

func reservation(id, nodeID, wallet string, until time.Time) ReservationRecord {
	return ReservationRecord{
		ReservationID: id,
		NodeID:        nodeID,
		WalletAddress: wallet,
		Status:        reservationReserved,
		ReservedUntil: until,
		CreatedAt:     until.Add(-10 * time.Minute),
	}
}

func TestReservationLifecycle(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	if err := store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(10*time.Minute)), now); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	arrived, err := store.TransitionReservation("res-1", "wallet-1", reservationReserved, reservationArrived, now)
	if err != nil {
		t.Fatalf("arrive failed: %v", err)
	}
	if arrived.Status != reservationArrived {
		t.Fatalf("expected ARRIVED, got %s", arrived.Status)
	}

	collected, err := store.TransitionReservation("res-1", "wallet-1", reservationArrived, reservationCollected, now)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if collected.Status != reservationCollected {
		t.Fatalf("expected COLLECTED, got %s", collected.Status)
	}
}

func TestCollectWithoutArriveRejected(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(10*time.Minute)), now)

	_, err := store.TransitionReservation("res-1", "wallet-1", reservationArrived, reservationCollected, now)
	if !errors.Is(err, errStaleTransition) {
		t.Fatalf("expected stale transition on skipped state, got %v", err)
	}

	// The reservation must be untouched by the failed transition.
	r, _ := store.GetReservation("res-1")
	if r.Status != reservationReserved {
		t.Fatalf("failed transition mutated reservation: %s", r.Status)
	}
}

func TestNodeCannotBeDoublyReserved(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	if err := store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(10*time.Minute)), now); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	err := store.ReserveNode(reservation("res-2", "node-1", "wallet-2", now.Add(10*time.Minute)), now)
	if !errors.Is(err, errNodeReserved) {
		t.Fatalf("expected node reserved conflict, got %v", err)
	}
}

func TestConcurrentReservesYieldOneHolder(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r := reservation("res-"+string(rune('a'+n)), "node-1", "wallet-"+string(rune('a'+n)), now.Add(10*time.Minute))
			results <- store.ReserveNode(r, now)
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, errNodeReserved):
			conflicts++
		default:
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 holder and %d conflicts, got %d and %d", attempts-1, successes, conflicts)
	}
}

func TestNodeReservableAgainAfterExpiry(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	if err := store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(time.Minute)), now); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	later := now.Add(2 * time.Minute)
	if err := store.ReserveNode(reservation("res-2", "node-1", "wallet-2", later.Add(10*time.Minute)), later); err != nil {
		t.Fatalf("reserve after expiry failed: %v", err)
	}
}

func TestExpiredReservationCannotTransition(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(time.Minute)), now)

	later := now.Add(2 * time.Minute)
	_, err := store.TransitionReservation("res-1", "wallet-1", reservationReserved, reservationArrived, later)
	if !errors.Is(err, errStaleTransition) {
		t.Fatalf("expected stale transition on expired reservation, got %v", err)
	}
}

func TestReservationWalletMismatch(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	now := time.Now().UTC()

	store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(10*time.Minute)), now)

	_, err := store.TransitionReservation("res-1", "wallet-2", reservationReserved, reservationArrived, now)
	if !errors.Is(err, errWalletMismatch) {
		t.Fatalf("expected wallet mismatch, got %v", err)
	}
}

func TestExpireReservationsSweep(t *testing.T) {
	store := newMemoryStore()
	seedNode(t, store, "node-1")
	seedNode(t, store, "node-2")
	now := time.Now().UTC()

	store.ReserveNode(reservation("res-1", "node-1", "wallet-1", now.Add(time.Minute)), now)
	store.ReserveNode(reservation("res-2", "node-2", "wallet-2", now.Add(time.Hour)), now)

	expired, err := store.ExpireReservations(now.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("expire sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}

	r1, _ := store.GetReservation("res-1")
	if r1.Status != reservationExpired {
		t.Fatalf("stale reservation not expired: %s", r1.Status)
	}
	r2, _ := store.GetReservation("res-2")
	if r2.Status != reservationReserved {
		t.Fatalf("live reservation touched by sweep: %s", r2.Status)
	}
}
