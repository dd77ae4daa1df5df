package main

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	spawnAvailable = "AVAILABLE"
	spawnClaimed   = "CLAIMED"
	spawnExpired   = "EXPIRED"
)

const (
	reservationReserved  = "RESERVED"
	reservationArrived   = "ARRIVED"
	reservationCollected = "COLLECTED"
	reservationExpired   = "EXPIRED"
)

var (
	errNotFound        = errors.New("record not found")
	errSpawnConflict   = errors.New("spawn already claimed or expired")
	errNodeReserved    = errors.New("node has a live reservation")
	errStaleTransition = errors.New("reservation not in required state")
	errWalletMismatch  = errors.New("reservation held by another wallet")
)

type PlayerLocation struct {
	WalletAddress    string
	Latitude         float64
	Longitude        float64
	Accuracy         float64
	DisplayName      string
	LastUpdateTS     int64     // client-reported, epoch ms, log/ordering only
	LastUpdateServer time.Time // server-observed, drives jump detection
}

type SpawnRecord struct {
	SpawnID      string
	Latitude     float64
	Longitude    float64
	Rarity       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ClaimStatus  string
	ClaimedBy    string
	ClaimedAt    *time.Time
	CatchQuality int
}

type MapNode struct {
	NodeID    string
	Latitude  float64
	Longitude float64
	NodeType  string
	CreatedAt time.Time
}

type ReservationRecord struct {
	ReservationID string
	NodeID        string
	WalletAddress string
	Status        string
	ReservedUntil time.Time
	CreatedAt     time.Time
}

type HuntEvent struct {
	WalletAddress string
	EventType     string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// HuntStore is the storage contract for the gateway. Claim operations are
// single conditional state transitions: the store decides the winner, the
// callers never read-then-write.
type HuntStore interface {
	GetLocation(wallet string) (*PlayerLocation, error)
	PutLocation(loc PlayerLocation) error

	CreateSpawn(s SpawnRecord) error
	GetSpawn(spawnID string) (*SpawnRecord, error)
	ClaimSpawn(spawnID, wallet string, quality int, now time.Time) (*SpawnRecord, error)
	NearbySpawns(lat, lng, radius float64, now time.Time) ([]SpawnRecord, error)
	SweepExpiredSpawns(now time.Time) (int, error)
	PurgeTerminalSpawns(olderThan time.Time) (int, error)

	CreateNode(n MapNode) error
	GetNode(nodeID string) (*MapNode, error)

	ReserveNode(r ReservationRecord, now time.Time) error
	GetReservation(reservationID string) (*ReservationRecord, error)
	TransitionReservation(reservationID, wallet, from, to string, now time.Time) (*ReservationRecord, error)
	ExpireReservations(now time.Time) (int, error)

	RecordEvent(ev HuntEvent) error
	WipeHuntData() error
	Ping() error
}

/* ======================
   In-memory store
   ====================== */

// memoryStore backs DEV_MODE and the test harness. One mutex guards the maps,
// but every claim is a single conditional transition under it, so the visible
// semantics match the conditional UPDATEs of the Postgres store.
type memoryStore struct {
	mu           sync.Mutex
	locations    map[string]PlayerLocation
	spawns       map[string]*SpawnRecord
	nodes        map[string]MapNode
	reservations map[string]*ReservationRecord
	events       []HuntEvent
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		locations:    make(map[string]PlayerLocation),
		spawns:       make(map[string]*SpawnRecord),
		nodes:        make(map[string]MapNode),
		reservations: make(map[string]*ReservationRecord),
	}
}

func (m *memoryStore) GetLocation(wallet string) (*PlayerLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, ok := m.locations[wallet]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (m *memoryStore) PutLocation(loc PlayerLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.locations[loc.WalletAddress]; ok && loc.LastUpdateServer.Before(prev.LastUpdateServer) {
		// last_update_server is monotonically non-decreasing per wallet
		loc.LastUpdateServer = prev.LastUpdateServer
	}
	m.locations[loc.WalletAddress] = loc
	return nil
}

func (m *memoryStore) CreateSpawn(s SpawnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.spawns[s.SpawnID]; exists {
		return errors.New("duplicate spawn id")
	}
	copied := s
	m.spawns[s.SpawnID] = &copied
	return nil
}

func (m *memoryStore) GetSpawn(spawnID string) (*SpawnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spawns[spawnID]
	if !ok {
		return nil, errNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memoryStore) ClaimSpawn(spawnID, wallet string, quality int, now time.Time) (*SpawnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spawns[spawnID]
	if !ok {
		return nil, errNotFound
	}
	if s.ClaimStatus != spawnAvailable || !s.ExpiresAt.After(now) {
		return nil, errSpawnConflict
	}

	s.ClaimStatus = spawnClaimed
	s.ClaimedBy = wallet
	claimedAt := now
	s.ClaimedAt = &claimedAt
	s.CatchQuality = quality

	copied := *s
	return &copied, nil
}

func (m *memoryStore) NearbySpawns(lat, lng, radius float64, now time.Time) ([]SpawnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]SpawnRecord, 0)
	for _, s := range m.spawns {
		if s.ClaimStatus != spawnAvailable || !s.ExpiresAt.After(now) {
			continue
		}
		if haversineMeters(lat, lng, s.Latitude, s.Longitude) > radius {
			continue
		}
		results = append(results, *s)
	}
	return results, nil
}

func (m *memoryStore) SweepExpiredSpawns(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	swept := 0
	for _, s := range m.spawns {
		if s.ClaimStatus == spawnAvailable && !s.ExpiresAt.After(now) {
			s.ClaimStatus = spawnExpired
			swept++
		}
	}
	return swept, nil
}

func (m *memoryStore) PurgeTerminalSpawns(olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, s := range m.spawns {
		if s.ClaimStatus == spawnAvailable {
			continue
		}
		if s.ExpiresAt.Before(olderThan) {
			delete(m.spawns, id)
			purged++
		}
	}
	return purged, nil
}

func (m *memoryStore) CreateNode(n MapNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[n.NodeID]; exists {
		return errors.New("duplicate node id")
	}
	m.nodes[n.NodeID] = n
	return nil
}

func (m *memoryStore) GetNode(nodeID string) (*MapNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nodeID]
	if !ok {
		return nil, errNotFound
	}
	return &n, nil
}

func (m *memoryStore) ReserveNode(r ReservationRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[r.NodeID]; !ok {
		return errNotFound
	}
	for _, existing := range m.reservations {
		if existing.NodeID != r.NodeID {
			continue
		}
		if reservationLive(existing, now) {
			return errNodeReserved
		}
	}

	copied := r
	m.reservations[r.ReservationID] = &copied
	return nil
}

func (m *memoryStore) GetReservation(reservationID string) (*ReservationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return nil, errNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *memoryStore) TransitionReservation(reservationID, wallet, from, to string, now time.Time) (*ReservationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return nil, errNotFound
	}
	if r.WalletAddress != wallet {
		return nil, errWalletMismatch
	}
	if r.Status != from || !r.ReservedUntil.After(now) {
		return nil, errStaleTransition
	}

	r.Status = to
	copied := *r
	return &copied, nil
}

func (m *memoryStore) ExpireReservations(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for _, r := range m.reservations {
		if (r.Status == reservationReserved || r.Status == reservationArrived) && !r.ReservedUntil.After(now) {
			r.Status = reservationExpired
			expired++
		}
	}
	return expired, nil
}

func (m *memoryStore) RecordEvent(ev HuntEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
	if len(m.events) > 10000 {
		m.events = m.events[len(m.events)-10000:]
	}
	return nil
}

func (m *memoryStore) WipeHuntData() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locations = make(map[string]PlayerLocation)
	m.spawns = make(map[string]*SpawnRecord)
	m.nodes = make(map[string]MapNode)
	m.reservations = make(map[string]*ReservationRecord)
	m.events = nil
	return nil
}

func (m *memoryStore) Ping() error {
	return nil
}

func reservationLive(r *ReservationRecord, now time.Time) bool {
	if r.Status != reservationReserved && r.Status != reservationArrived {
		return false
	}
	return r.ReservedUntil.After(now)
}
