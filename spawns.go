package main

import (
	"crypto/rand"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type rarityBand struct {
	Name   string
	Weight int
}

// defaultRarityTable is the creation-time draw. Reward semantics attached to a
// rarity (drop tables, pity counters) live in the reward service, not here.
var defaultRarityTable = []rarityBand{
	{Name: "common", Weight: 60},
	{Name: "uncommon", Weight: 25},
	{Name: "rare", Weight: 10},
	{Name: "epic", Weight: 4},
	{Name: "legendary", Weight: 1},
}

func drawRarity(table []rarityBand) (string, error) {
	total := 0
	for _, band := range table {
		total += band.Weight
	}
	if total <= 0 {
		return "common", nil
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(total)))
	if err != nil {
		return "", err
	}

	roll := int(n.Int64())
	for _, band := range table {
		if roll < band.Weight {
			return band.Name, nil
		}
		roll -= band.Weight
	}
	return table[len(table)-1].Name, nil
}

type spawnManager struct {
	store  HuntStore
	cfg    huntConfig
	rarity []rarityBand
	hub    *huntHub
}

func newSpawnManager(store HuntStore, cfg huntConfig, hub *huntHub) *spawnManager {
	return &spawnManager{
		store:  store,
		cfg:    cfg,
		rarity: defaultRarityTable,
		hub:    hub,
	}
}

// CreateSpawn drops a new collectible at the given point. An empty rarity
// triggers the weighted draw.
func (m *spawnManager) CreateSpawn(lat, lng float64, rarity string) (*SpawnRecord, error) {
	if rarity == "" {
		drawn, err := drawRarity(m.rarity)
		if err != nil {
			return nil, err
		}
		rarity = drawn
	}

	now := time.Now().UTC()
	spawn := SpawnRecord{
		SpawnID:     uuid.NewString(),
		Latitude:    lat,
		Longitude:   lng,
		Rarity:      rarity,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.SpawnTTL),
		ClaimStatus: spawnAvailable,
	}
	if err := m.store.CreateSpawn(spawn); err != nil {
		return nil, err
	}

	m.hub.Broadcast("spawn_created", map[string]interface{}{
		"spawnId":   spawn.SpawnID,
		"latitude":  spawn.Latitude,
		"longitude": spawn.Longitude,
		"rarity":    spawn.Rarity,
		"expiresAt": spawn.ExpiresAt.Format(time.RFC3339),
	})
	return &spawn, nil
}

func (m *spawnManager) Nearby(lat, lng, radius float64) ([]SpawnRecord, error) {
	return m.store.NearbySpawns(lat, lng, radius, time.Now().UTC())
}

// SweepExpired transitions stale AVAILABLE spawns to EXPIRED and lets expired
// reservations go. It runs concurrently with claim attempts and leans on the
// store's conditional writes rather than excluding them.
func (m *spawnManager) SweepExpired(now time.Time) (int, error) {
	swept, err := m.store.SweepExpiredSpawns(now)
	if err != nil {
		return 0, err
	}

	released, err := m.store.ExpireReservations(now)
	if err != nil {
		return swept, err
	}

	if swept > 0 || released > 0 {
		m.hub.Broadcast("spawn_sweep", map[string]interface{}{
			"spawnsExpired":        swept,
			"reservationsReleased": released,
		})
	}
	return swept, nil
}

func (m *spawnManager) runSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			now = now.UTC()
			if _, err := m.SweepExpired(now); err != nil {
				log.Println("spawn sweep failed:", err)
			}
			if _, err := m.store.PurgeTerminalSpawns(now.Add(-m.cfg.TerminalRetention)); err != nil {
				log.Println("spawn purge failed:", err)
			}
		}
	}
}
