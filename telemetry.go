package main

import (
	"encoding/json"
	"log"
	"time"
)

// recordHuntEvent writes a best-effort telemetry row. Rejections and claims
// are worth a trace; a telemetry failure never fails the request.
func recordHuntEvent(store HuntStore, wallet, eventType string, payload map[string]interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	ev := HuntEvent{
		WalletAddress: wallet,
		EventType:     eventType,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.RecordEvent(ev); err != nil {
		log.Println("telemetry insert failed:", err)
	}
}
