package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func healthHandler(store HuntStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(); err != nil {
			writeErrorCode(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE")
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func locationHandler(store HuntStore, cfg huntConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req LocationUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if !isValidWalletAddress(req.WalletAddress) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_WALLET_ADDRESS")
			return
		}
		if !isValidLatitude(req.Latitude) || !isValidLongitude(req.Longitude) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_COORDINATES")
			return
		}
		if req.Accuracy < 0 {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_ACCURACY")
			return
		}

		now := time.Now().UTC()
		verdict, err := validateLocation(store, cfg, req.WalletAddress, req.DisplayName,
			req.Latitude, req.Longitude, req.Accuracy, req.Timestamp, now)
		if err != nil {
			log.Println("location validation failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		if !verdict.Accepted {
			recordHuntEvent(store, req.WalletAddress, "location_rejected", map[string]interface{}{
				"reason":   verdict.Reason,
				"distance": verdict.DistanceMeters,
				"speed":    verdict.SpeedMPS,
				"accuracy": req.Accuracy,
			})
			writeErrorCode(w, http.StatusUnprocessableEntity, verdict.Reason)
			return
		}

		writeJSON(w, http.StatusOK, LocationUpdateResponse{
			OK:            true,
			WalletAddress: verdict.Location.WalletAddress,
			Latitude:      verdict.Location.Latitude,
			Longitude:     verdict.Location.Longitude,
			Accuracy:      verdict.Location.Accuracy,
			ServerTime:    verdict.Location.LastUpdateServer.Format(time.RFC3339),
		})
	}
}

func nearbyHandler(spawns *spawnManager, cfg huntConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
		if errLat != nil || errLng != nil || !isValidLatitude(lat) || !isValidLongitude(lng) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_COORDINATES")
			return
		}

		radius := 500.0
		if raw := r.URL.Query().Get("radius"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 || parsed > 10000 {
				writeErrorCode(w, http.StatusBadRequest, "INVALID_RADIUS")
				return
			}
			radius = parsed
		}

		records, err := spawns.Nearby(lat, lng, radius)
		if err != nil {
			log.Println("nearby query failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		views := make([]SpawnView, 0, len(records))
		for _, s := range records {
			views = append(views, spawnView(s))
		}
		writeJSON(w, http.StatusOK, NearbyResponse{OK: true, Spawns: views})
	}
}

func catchHandler(store HuntStore, cfg huntConfig, hub *huntHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req CatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if !isValidWalletAddress(req.WalletAddress) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_WALLET_ADDRESS")
			return
		}
		if req.SpawnID == "" {
			writeErrorCode(w, http.StatusBadRequest, "MISSING_SPAWN_ID")
			return
		}
		if req.CatchQuality < 0 || req.CatchQuality > 100 {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_CATCH_QUALITY")
			return
		}

		now := time.Now().UTC()

		// Proximity gate before the claim attempt. The claim itself stays a
		// single conditional write in the store.
		if req.Latitude != 0 || req.Longitude != 0 {
			spawn, err := store.GetSpawn(req.SpawnID)
			if errors.Is(err, errNotFound) {
				writeErrorCode(w, http.StatusNotFound, "SPAWN_NOT_FOUND")
				return
			}
			if err != nil {
				log.Println("spawn lookup failed:", err)
				writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
				return
			}
			distance := haversineMeters(req.Latitude, req.Longitude, spawn.Latitude, spawn.Longitude)
			if distance > cfg.CatchRadiusMeters {
				recordHuntEvent(store, req.WalletAddress, "catch_rejected", map[string]interface{}{
					"reason":   "TOO_FAR_FROM_SPAWN",
					"spawnId":  req.SpawnID,
					"distance": distance,
				})
				writeErrorCode(w, http.StatusUnprocessableEntity, "TOO_FAR_FROM_SPAWN")
				return
			}
		}

		claimed, err := store.ClaimSpawn(req.SpawnID, req.WalletAddress, req.CatchQuality, now)
		if errors.Is(err, errNotFound) {
			writeErrorCode(w, http.StatusNotFound, "SPAWN_NOT_FOUND")
			return
		}
		if errors.Is(err, errSpawnConflict) {
			// Expected under contention; not an error worth alarming on.
			writeErrorCode(w, http.StatusConflict, "SPAWN_ALREADY_CLAIMED_OR_EXPIRED")
			return
		}
		if err != nil {
			log.Println("spawn claim failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		recordHuntEvent(store, req.WalletAddress, "spawn_claimed", map[string]interface{}{
			"spawnId": claimed.SpawnID,
			"rarity":  claimed.Rarity,
			"quality": claimed.CatchQuality,
		})
		hub.Broadcast("spawn_claimed", map[string]interface{}{
			"spawnId":   claimed.SpawnID,
			"rarity":    claimed.Rarity,
			"claimedBy": claimed.ClaimedBy,
		})

		writeJSON(w, http.StatusOK, CatchResponse{OK: true, Spawn: spawnView(*claimed)})
	}
}

func submitScoreHandler(bridge *competitionBridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if bridge == nil {
			// Unsigned submissions are never an option.
			writeErrorCode(w, http.StatusServiceUnavailable, "COMPETITION_NOT_CONFIGURED")
			return
		}

		var req SubmitScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if req.CompetitionID == "" {
			writeErrorCode(w, http.StatusBadRequest, "MISSING_COMPETITION_ID")
			return
		}
		if !isValidWalletAddress(req.WalletAddress) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_WALLET_ADDRESS")
			return
		}
		if !isValidRunID(req.RunID) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_RUN_ID")
			return
		}
		if req.Score == nil || *req.Score < 0 {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_SCORE")
			return
		}

		result, err := bridge.SubmitScore(scoreSubmission{
			CompetitionID: req.CompetitionID,
			WalletAddress: req.WalletAddress,
			DisplayName:   req.DisplayName,
			Score:         *req.Score,
			RunID:         req.RunID,
			PowerUpsUsed:  req.PowerUpsUsed,
		})

		var rejection *upstreamRejection
		switch {
		case errors.Is(err, errDuplicateRun):
			writeErrorCode(w, http.StatusConflict, "DUPLICATE_RUN")
		case errors.Is(err, errUpstreamUnavailable):
			writeErrorCode(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE")
		case errors.Is(err, errUpstreamMalformed):
			writeErrorCode(w, http.StatusBadGateway, "UPSTREAM_MALFORMED")
		case errors.As(err, &rejection):
			writeErrorCode(w, http.StatusBadRequest, rejection.Code)
		case err != nil:
			log.Println("score submission failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		default:
			writeJSON(w, http.StatusOK, SubmitScoreResponse{
				OK:             true,
				Rank:           result.Rank,
				IsNewHighScore: result.IsNewHighScore,
			})
		}
	}
}

func spawnView(s SpawnRecord) SpawnView {
	view := SpawnView{
		SpawnID:     s.SpawnID,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
		Rarity:      s.Rarity,
		ClaimStatus: s.ClaimStatus,
		ExpiresAt:   s.ExpiresAt.Format(time.RFC3339),
	}
	if s.ClaimedBy != "" {
		view.ClaimedBy = s.ClaimedBy
	}
	if s.ClaimedAt != nil {
		view.ClaimedAt = s.ClaimedAt.Format(time.RFC3339)
	}
	if s.ClaimStatus == spawnClaimed {
		view.CatchQuality = s.CatchQuality
	}
	return view
}
