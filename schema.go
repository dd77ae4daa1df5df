package main

import "database/sql"

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS player_locations (
			wallet_address TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			last_update_ts BIGINT NOT NULL,
			last_update_server TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS spawns (
			spawn_id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			rarity TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			claim_status TEXT NOT NULL,
			claimed_by TEXT,
			claimed_at TIMESTAMPTZ,
			catch_quality INT NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_spawns_status_expiry
		ON spawns (claim_status, expires_at);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_spawns_latitude
		ON spawns (latitude);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS map_nodes (
			node_id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			node_type TEXT NOT NULL DEFAULT 'resource',
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reservations (
			reservation_id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL,
			wallet_address TEXT NOT NULL,
			status TEXT NOT NULL,
			reserved_until TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	// At most one live hold per node; concurrent reserves race on this index
	// and exactly one insert wins.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_live_node
		ON reservations (node_id)
		WHERE status IN ('RESERVED', 'ARRIVED');
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS hunt_telemetry (
			id BIGSERIAL PRIMARY KEY,
			wallet_address TEXT,
			event_type TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}
