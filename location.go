package main

import "time"

const (
	rejectAccuracyTooLow = "LOCATION_ACCURACY_TOO_LOW"
	rejectJump           = "LOCATION_JUMP_REJECTED"
)

type locationVerdict struct {
	Accepted       bool
	Reason         string
	DistanceMeters float64
	SpeedMPS       float64
	Location       *PlayerLocation
}

// validateLocation scores a location ping against the wallet's last accepted
// position and persists it when it passes. This is the sole write path for
// player position.
//
// Elapsed time comes from server-observed time between accepted updates, not
// the client timestamp, so a client cannot shrink or stretch the interval to
// sneak a teleport through. The client timestamp is stored for ordering and
// log purposes only.
func validateLocation(store HuntStore, cfg huntConfig, wallet, displayName string,
	lat, lng, accuracy float64, clientTS int64, now time.Time) (locationVerdict, error) {

	if accuracy >= cfg.MaxAccuracyMeters {
		return locationVerdict{Reason: rejectAccuracyTooLow}, nil
	}

	prev, err := store.GetLocation(wallet)
	if err != nil {
		return locationVerdict{}, err
	}

	verdict := locationVerdict{Accepted: true}

	if prev != nil {
		verdict.DistanceMeters = haversineMeters(prev.Latitude, prev.Longitude, lat, lng)

		elapsed := now.Sub(prev.LastUpdateServer)
		if elapsed < cfg.MinElapsed {
			// Floor rapid-fire pings so a tiny interval cannot divide a
			// legitimate step into an implausible speed.
			elapsed = cfg.MinElapsed
		}
		verdict.SpeedMPS = verdict.DistanceMeters / elapsed.Seconds()

		if verdict.SpeedMPS > cfg.MaxSpeedMPS {
			return locationVerdict{
				Reason:         rejectJump,
				DistanceMeters: verdict.DistanceMeters,
				SpeedMPS:       verdict.SpeedMPS,
			}, nil
		}
		if displayName == "" {
			displayName = prev.DisplayName
		}
	}

	loc := PlayerLocation{
		WalletAddress:    wallet,
		Latitude:         lat,
		Longitude:        lng,
		Accuracy:         accuracy,
		DisplayName:      displayName,
		LastUpdateTS:     clientTS,
		LastUpdateServer: now,
	}
	if err := store.PutLocation(loc); err != nil {
		return locationVerdict{}, err
	}

	verdict.Location = &loc
	return verdict, nil
}
