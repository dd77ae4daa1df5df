package main

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// postgresStore implements HuntStore over Postgres. Every claim and
// reservation transition is a single UPDATE (or guarded INSERT) whose WHERE
// clause carries the precondition, so concurrent attempts resolve to exactly
// one winner inside the database.
type postgresStore struct {
	db *sql.DB
}

func newPostgresStore(db *sql.DB) *postgresStore {
	return &postgresStore{db: db}
}

func (p *postgresStore) GetLocation(wallet string) (*PlayerLocation, error) {
	var loc PlayerLocation
	err := p.db.QueryRow(`
		SELECT wallet_address, latitude, longitude, accuracy, display_name,
			last_update_ts, last_update_server
		FROM player_locations
		WHERE wallet_address = $1
	`, wallet).Scan(
		&loc.WalletAddress, &loc.Latitude, &loc.Longitude, &loc.Accuracy,
		&loc.DisplayName, &loc.LastUpdateTS, &loc.LastUpdateServer,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (p *postgresStore) PutLocation(loc PlayerLocation) error {
	_, err := p.db.Exec(`
		INSERT INTO player_locations (
			wallet_address, latitude, longitude, accuracy, display_name,
			last_update_ts, last_update_server
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wallet_address)
		DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			accuracy = EXCLUDED.accuracy,
			display_name = EXCLUDED.display_name,
			last_update_ts = EXCLUDED.last_update_ts,
			last_update_server = GREATEST(player_locations.last_update_server, EXCLUDED.last_update_server)
	`, loc.WalletAddress, loc.Latitude, loc.Longitude, loc.Accuracy,
		loc.DisplayName, loc.LastUpdateTS, loc.LastUpdateServer)
	return err
}

func (p *postgresStore) CreateSpawn(s SpawnRecord) error {
	_, err := p.db.Exec(`
		INSERT INTO spawns (
			spawn_id, latitude, longitude, rarity, created_at, expires_at,
			claim_status, catch_quality
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`, s.SpawnID, s.Latitude, s.Longitude, s.Rarity, s.CreatedAt, s.ExpiresAt, s.ClaimStatus)
	return err
}

func (p *postgresStore) GetSpawn(spawnID string) (*SpawnRecord, error) {
	s, err := scanSpawn(p.db.QueryRow(`
		SELECT spawn_id, latitude, longitude, rarity, created_at, expires_at,
			claim_status, COALESCE(claimed_by, ''), claimed_at, catch_quality
		FROM spawns
		WHERE spawn_id = $1
	`, spawnID))
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *postgresStore) ClaimSpawn(spawnID, wallet string, quality int, now time.Time) (*SpawnRecord, error) {
	s, err := scanSpawn(p.db.QueryRow(`
		UPDATE spawns
		SET claim_status = $2,
			claimed_by = $3,
			claimed_at = $4,
			catch_quality = $5
		WHERE spawn_id = $1
		  AND claim_status = $6
		  AND expires_at > $4
		RETURNING spawn_id, latitude, longitude, rarity, created_at, expires_at,
			claim_status, COALESCE(claimed_by, ''), claimed_at, catch_quality
	`, spawnID, spawnClaimed, wallet, now, quality, spawnAvailable))
	if err == sql.ErrNoRows {
		// Lost the race, already expired, or never existed; distinguish for
		// the 404-vs-409 split.
		var exists bool
		if checkErr := p.db.QueryRow(`
			SELECT EXISTS (SELECT 1 FROM spawns WHERE spawn_id = $1)
		`, spawnID).Scan(&exists); checkErr != nil {
			return nil, checkErr
		}
		if !exists {
			return nil, errNotFound
		}
		return nil, errSpawnConflict
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *postgresStore) NearbySpawns(lat, lng, radius float64, now time.Time) ([]SpawnRecord, error) {
	// Coarse bounding box in SQL, exact haversine filter in Go so the radius
	// semantics match the location validator.
	latDelta := radius / 111320.0
	rows, err := p.db.Query(`
		SELECT spawn_id, latitude, longitude, rarity, created_at, expires_at,
			claim_status, COALESCE(claimed_by, ''), claimed_at, catch_quality
		FROM spawns
		WHERE claim_status = $1
		  AND expires_at > $2
		  AND latitude BETWEEN $3 AND $4
	`, spawnAvailable, now, lat-latDelta, lat+latDelta)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]SpawnRecord, 0)
	for rows.Next() {
		s, err := scanSpawn(rows)
		if err != nil {
			return nil, err
		}
		if haversineMeters(lat, lng, s.Latitude, s.Longitude) > radius {
			continue
		}
		results = append(results, *s)
	}
	return results, rows.Err()
}

func (p *postgresStore) SweepExpiredSpawns(now time.Time) (int, error) {
	result, err := p.db.Exec(`
		UPDATE spawns
		SET claim_status = $1
		WHERE claim_status = $2
		  AND expires_at <= $3
	`, spawnExpired, spawnAvailable, now)
	if err != nil {
		return 0, err
	}
	swept, err := result.RowsAffected()
	return int(swept), err
}

func (p *postgresStore) PurgeTerminalSpawns(olderThan time.Time) (int, error) {
	result, err := p.db.Exec(`
		DELETE FROM spawns
		WHERE claim_status <> $1
		  AND expires_at < $2
	`, spawnAvailable, olderThan)
	if err != nil {
		return 0, err
	}
	purged, err := result.RowsAffected()
	return int(purged), err
}

func (p *postgresStore) CreateNode(n MapNode) error {
	_, err := p.db.Exec(`
		INSERT INTO map_nodes (node_id, latitude, longitude, node_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.NodeID, n.Latitude, n.Longitude, n.NodeType, n.CreatedAt)
	return err
}

func (p *postgresStore) GetNode(nodeID string) (*MapNode, error) {
	var n MapNode
	err := p.db.QueryRow(`
		SELECT node_id, latitude, longitude, node_type, created_at
		FROM map_nodes
		WHERE node_id = $1
	`, nodeID).Scan(&n.NodeID, &n.Latitude, &n.Longitude, &n.NodeType, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (p *postgresStore) ReserveNode(r ReservationRecord, now time.Time) error {
	var exists bool
	if err := p.db.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM map_nodes WHERE node_id = $1)
	`, r.NodeID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return errNotFound
	}

	// Clear any stale hold first, then insert. The partial unique index on
	// (node_id) over live statuses makes the insert the atomic arbiter:
	// concurrent reserves collide on the index and exactly one wins.
	if _, err := p.db.Exec(`
		UPDATE reservations
		SET status = $1
		WHERE node_id = $2
		  AND status IN ($3, $4)
		  AND reserved_until <= $5
	`, reservationExpired, r.NodeID, reservationReserved, reservationArrived, now); err != nil {
		return err
	}

	_, err := p.db.Exec(`
		INSERT INTO reservations (
			reservation_id, node_id, wallet_address, status, reserved_until, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ReservationID, r.NodeID, r.WalletAddress, r.Status, r.ReservedUntil, r.CreatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return errNodeReserved
	}
	return err
}

func (p *postgresStore) GetReservation(reservationID string) (*ReservationRecord, error) {
	var r ReservationRecord
	err := p.db.QueryRow(`
		SELECT reservation_id, node_id, wallet_address, status, reserved_until, created_at
		FROM reservations
		WHERE reservation_id = $1
	`, reservationID).Scan(
		&r.ReservationID, &r.NodeID, &r.WalletAddress, &r.Status, &r.ReservedUntil, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *postgresStore) TransitionReservation(reservationID, wallet, from, to string, now time.Time) (*ReservationRecord, error) {
	var r ReservationRecord
	err := p.db.QueryRow(`
		UPDATE reservations
		SET status = $2
		WHERE reservation_id = $1
		  AND wallet_address = $3
		  AND status = $4
		  AND reserved_until > $5
		RETURNING reservation_id, node_id, wallet_address, status, reserved_until, created_at
	`, reservationID, to, wallet, from, now).Scan(
		&r.ReservationID, &r.NodeID, &r.WalletAddress, &r.Status, &r.ReservedUntil, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		existing, lookupErr := p.GetReservation(reservationID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing.WalletAddress != wallet {
			return nil, errWalletMismatch
		}
		return nil, errStaleTransition
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *postgresStore) ExpireReservations(now time.Time) (int, error) {
	result, err := p.db.Exec(`
		UPDATE reservations
		SET status = $1
		WHERE status IN ($2, $3)
		  AND reserved_until <= $4
	`, reservationExpired, reservationReserved, reservationArrived, now)
	if err != nil {
		return 0, err
	}
	expired, err := result.RowsAffected()
	return int(expired), err
}

func (p *postgresStore) RecordEvent(ev HuntEvent) error {
	_, err := p.db.Exec(`
		INSERT INTO hunt_telemetry (wallet_address, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.WalletAddress, ev.EventType, ev.Payload, ev.CreatedAt)
	return err
}

func (p *postgresStore) WipeHuntData() error {
	_, err := p.db.Exec(`
		TRUNCATE player_locations, spawns, map_nodes, reservations, hunt_telemetry
	`)
	return err
}

func (p *postgresStore) Ping() error {
	return p.db.Ping()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpawn(row rowScanner) (*SpawnRecord, error) {
	var s SpawnRecord
	var claimedAt sql.NullTime
	err := row.Scan(
		&s.SpawnID, &s.Latitude, &s.Longitude, &s.Rarity, &s.CreatedAt,
		&s.ExpiresAt, &s.ClaimStatus, &s.ClaimedBy, &claimedAt, &s.CatchQuality,
	)
	if err != nil {
		return nil, err
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		s.ClaimedAt = &t
	}
	return &s, nil
}
