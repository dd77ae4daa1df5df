package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// walletFromHeader reads the node routes' identity header. Like the rest of
// the gateway, the address itself is trusted input from the wallet layer.
func walletFromHeader(r *http.Request) (string, bool) {
	wallet := r.Header.Get("x-wallet-address")
	if !isValidWalletAddress(wallet) {
		return "", false
	}
	return wallet, true
}

func reserveNodeHandler(store HuntStore, cfg huntConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wallet, ok := walletFromHeader(r)
		if !ok {
			writeErrorCode(w, http.StatusUnauthorized, "MISSING_WALLET_ADDRESS")
			return
		}

		var req ReserveNodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}

		now := time.Now().UTC()
		reservation := ReservationRecord{
			ReservationID: uuid.NewString(),
			NodeID:        req.NodeID,
			WalletAddress: wallet,
			Status:        reservationReserved,
			ReservedUntil: now.Add(cfg.ReservationTTL),
			CreatedAt:     now,
		}

		err := store.ReserveNode(reservation, now)
		if errors.Is(err, errNotFound) {
			writeErrorCode(w, http.StatusNotFound, "NODE_NOT_FOUND")
			return
		}
		if errors.Is(err, errNodeReserved) {
			writeErrorCode(w, http.StatusConflict, "NODE_ALREADY_RESERVED")
			return
		}
		if err != nil {
			log.Println("node reserve failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		writeJSON(w, http.StatusOK, ReservationResponse{
			OK:            true,
			ReservationID: reservation.ReservationID,
			NodeID:        reservation.NodeID,
			Status:        reservation.Status,
			ReservedUntil: reservation.ReservedUntil.Format(time.RFC3339),
		})
	}
}

func arriveNodeHandler(store HuntStore, cfg huntConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wallet, ok := walletFromHeader(r)
		if !ok {
			writeErrorCode(w, http.StatusUnauthorized, "MISSING_WALLET_ADDRESS")
			return
		}

		var req ArriveNodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReservationID == "" {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		if !isValidLatitude(req.Latitude) || !isValidLongitude(req.Longitude) {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_COORDINATES")
			return
		}

		reservation, err := store.GetReservation(req.ReservationID)
		if errors.Is(err, errNotFound) {
			writeErrorCode(w, http.StatusNotFound, "RESERVATION_NOT_FOUND")
			return
		}
		if err != nil {
			log.Println("reservation lookup failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		node, err := store.GetNode(reservation.NodeID)
		if err != nil {
			log.Println("node lookup failed:", err)
			writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}

		distance := haversineMeters(req.Latitude, req.Longitude, node.Latitude, node.Longitude)
		if distance > cfg.ArriveRadiusMeters {
			writeErrorCode(w, http.StatusUnprocessableEntity, "TOO_FAR_FROM_NODE")
			return
		}

		updated, err := store.TransitionReservation(req.ReservationID, wallet,
			reservationReserved, reservationArrived, time.Now().UTC())
		if err != nil {
			writeReservationTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ReservationResponse{
			OK:            true,
			ReservationID: updated.ReservationID,
			NodeID:        updated.NodeID,
			Status:        updated.Status,
			ReservedUntil: updated.ReservedUntil.Format(time.RFC3339),
		})
	}
}

func collectNodeHandler(store HuntStore, cfg huntConfig, hub *huntHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		wallet, ok := walletFromHeader(r)
		if !ok {
			writeErrorCode(w, http.StatusUnauthorized, "MISSING_WALLET_ADDRESS")
			return
		}

		var req CollectNodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReservationID == "" {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST")
			return
		}

		// COLLECT requires ARRIVED; skipping straight from RESERVED rejects.
		updated, err := store.TransitionReservation(req.ReservationID, wallet,
			reservationArrived, reservationCollected, time.Now().UTC())
		if err != nil {
			writeReservationTransitionError(w, err)
			return
		}

		recordHuntEvent(store, wallet, "node_collected", map[string]interface{}{
			"reservationId": updated.ReservationID,
			"nodeId":        updated.NodeID,
		})
		hub.Broadcast("node_collected", map[string]interface{}{
			"nodeId":      updated.NodeID,
			"collectedBy": wallet,
		})

		writeJSON(w, http.StatusOK, ReservationResponse{
			OK:            true,
			ReservationID: updated.ReservationID,
			NodeID:        updated.NodeID,
			Status:        updated.Status,
			ReservedUntil: updated.ReservedUntil.Format(time.RFC3339),
		})
	}
}

func writeReservationTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeErrorCode(w, http.StatusNotFound, "RESERVATION_NOT_FOUND")
	case errors.Is(err, errWalletMismatch):
		writeErrorCode(w, http.StatusForbidden, "RESERVATION_NOT_YOURS")
	case errors.Is(err, errStaleTransition):
		writeErrorCode(w, http.StatusConflict, "RESERVATION_STATE_CONFLICT")
	default:
		log.Println("reservation transition failed:", err)
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR")
	}
}
