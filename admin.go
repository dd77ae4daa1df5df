package main

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// The wipe endpoint demands this exact phrase in addition to the boolean
// confirm flag. A bare "confirm" must never delete anything.
const wipeConfirmationPhrase = "WIPE ALL HUNT DATA"

func requireAdminSecret(adminSecret string, w http.ResponseWriter, r *http.Request) bool {
	if adminSecret == "" {
		// Unset secret disables the admin surface outright.
		writeErrorCode(w, http.StatusServiceUnavailable, "ADMIN_NOT_CONFIGURED")
		return false
	}
	provided := r.Header.Get("X-Admin-Secret")
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminSecret)) != 1 {
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN")
		return false
	}
	return true
}

func adminWipeHandler(store HuntStore, adminSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !requireAdminSecret(adminSecret, w, r) {
			return
		}

		var req AdminWipeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if !req.Confirm || req.ConfirmationPhrase != wipeConfirmationPhrase {
			writeErrorCode(w, http.StatusBadRequest, "CONFIRMATION_PHRASE_MISMATCH")
			return
		}

		if err := store.WipeHuntData(); err != nil {
			log.Println("hunt data wipe failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		log.Println("ADMIN: hunt data wiped")
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

func adminSpawnHandler(spawns *spawnManager, adminSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !requireAdminSecret(adminSecret, w, r) {
			return
		}

		var req AdminSpawnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if !isValidLatitude(req.Latitude) || !isValidLongitude(req.Longitude) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_COORDINATES")
			return
		}

		spawn, err := spawns.CreateSpawn(req.Latitude, req.Longitude, req.Rarity)
		if err != nil {
			log.Println("admin spawn create failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		writeJSON(w, http.StatusCreated, CatchResponse{OK: true, Spawn: spawnView(*spawn)})
	}
}

func adminNodeHandler(store HuntStore, adminSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !requireAdminSecret(adminSecret, w, r) {
			return
		}

		var req AdminNodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if !isValidLatitude(req.Latitude) || !isValidLongitude(req.Longitude) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_COORDINATES")
			return
		}

		nodeType := req.NodeType
		if nodeType == "" {
			nodeType = "resource"
		}
		node := MapNode{
			NodeID:    uuid.NewString(),
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			NodeType:  nodeType,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.CreateNode(node); err != nil {
			log.Println("admin node create failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"ok":       true,
			"nodeId":   node.NodeID,
			"nodeType": node.NodeType,
		})
	}
}
