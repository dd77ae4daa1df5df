package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

/* ======================
   Request / Response Types
   ====================== */

type LocationUpdateRequest struct {
	WalletAddress string  `json:"walletAddress"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Accuracy      float64 `json:"accuracy"`
	Timestamp     int64   `json:"timestamp"`
	DisplayName   string  `json:"displayName,omitempty"`
}

type LocationUpdateResponse struct {
	OK            bool    `json:"ok"`
	WalletAddress string  `json:"walletAddress"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Accuracy      float64 `json:"accuracy"`
	ServerTime    string  `json:"serverTime"`
}

type SpawnView struct {
	SpawnID      string  `json:"spawnId"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Rarity       string  `json:"rarity"`
	ClaimStatus  string  `json:"claimStatus"`
	ClaimedBy    string  `json:"claimedBy,omitempty"`
	ClaimedAt    string  `json:"claimedAt,omitempty"`
	CatchQuality int     `json:"catchQuality,omitempty"`
	ExpiresAt    string  `json:"expiresAt"`
}

type NearbyResponse struct {
	OK     bool        `json:"ok"`
	Spawns []SpawnView `json:"spawns"`
}

type CatchRequest struct {
	WalletAddress string  `json:"walletAddress"`
	SpawnID       string  `json:"spawnId"`
	CatchQuality  int     `json:"catchQuality"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
}

type CatchResponse struct {
	OK    bool      `json:"ok"`
	Spawn SpawnView `json:"spawn"`
}

type ReserveNodeRequest struct {
	NodeID string `json:"nodeId"`
}

type ArriveNodeRequest struct {
	ReservationID string  `json:"reservationId"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

type CollectNodeRequest struct {
	ReservationID string `json:"reservationId"`
}

type ReservationResponse struct {
	OK            bool   `json:"ok"`
	ReservationID string `json:"reservationId"`
	NodeID        string `json:"nodeId"`
	Status        string `json:"status"`
	ReservedUntil string `json:"reservedUntil"`
}

type SubmitScoreRequest struct {
	CompetitionID string `json:"competitionId"`
	WalletAddress string `json:"walletAddress"`
	DisplayName   string `json:"displayName,omitempty"`
	Score         *int64 `json:"score"`
	RunID         string `json:"runId"`
	PowerUpsUsed  int    `json:"powerUpsUsed,omitempty"`
}

type SubmitScoreResponse struct {
	OK             bool `json:"ok"`
	Rank           int  `json:"rank"`
	IsNewHighScore bool `json:"isNewHighScore"`
}

type AdminWipeRequest struct {
	Confirm            bool   `json:"confirm"`
	ConfirmationPhrase string `json:"confirmationPhrase"`
}

type AdminSpawnRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Rarity    string  `json:"rarity,omitempty"`
}

type AdminNodeRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	NodeType  string  `json:"nodeType,omitempty"`
}

/* ======================
   main()
   ====================== */

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	log.Println("App environment:", env)

	devMode := os.Getenv("DEV_MODE") == "true"
	if devMode {
		log.Println("⚠️  DEV MODE ENABLED (in-memory store)")
	}

	cfg := loadHuntConfig()
	log.Printf("Hunt config: maxAccuracy=%.0fm maxSpeed=%.0fm/s spawnTTL=%s reservationTTL=%s",
		cfg.MaxAccuracyMeters, cfg.MaxSpeedMPS, cfg.SpawnTTL, cfg.ReservationTTL)

	var store HuntStore
	if devMode {
		store = newMemoryStore()
	} else {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			log.Fatal("DATABASE_URL is not set")
		}

		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatal("failed to open database:", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)

		if err := db.Ping(); err != nil {
			log.Fatal("failed to ping database:", err)
		}
		log.Println("Connected to PostgreSQL")

		if err := ensureSchema(db); err != nil {
			log.Fatal("Failed to ensure schema:", err)
		}
		store = newPostgresStore(db)
	}

	hub := newHuntHub()
	spawns := newSpawnManager(store, cfg, hub)

	var bridge *competitionBridge
	if compCfg, err := loadCompetitionConfig(); err != nil {
		// The route refuses traffic rather than degrading to unsigned
		// submissions.
		log.Println("Competition bridge disabled:", err)
	} else {
		bridge = newCompetitionBridge(compCfg, newRunCache(
			parseEnvInt("RUN_DEDUP_HIGH_WATER", 10000),
			parseEnvInt("RUN_DEDUP_RETAIN", 8000),
		))
		log.Println("Competition bridge enabled:", compCfg.BaseURL)
	}

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		log.Println("WARN: ADMIN_SECRET not set; admin endpoints disabled")
	}

	stop := make(chan struct{})
	go spawns.runSweeper(stop)

	mux := http.NewServeMux()
	registerRoutes(mux, store, cfg, spawns, bridge, hub, adminSecret)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := "0.0.0.0:" + port
	log.Println("Listening on", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server failed:", err)
	}
}

/* ======================
   Routes
   ====================== */

func registerRoutes(mux *http.ServeMux, store HuntStore, cfg huntConfig,
	spawns *spawnManager, bridge *competitionBridge, hub *huntHub, adminSecret string) {

	mux.HandleFunc("/health", healthHandler(store))
	mux.HandleFunc("/api/hunt/location", locationHandler(store, cfg))
	mux.HandleFunc("/api/hunt/nearby", nearbyHandler(spawns, cfg))
	mux.HandleFunc("/api/hunt/catch", catchHandler(store, cfg, hub))
	mux.HandleFunc("/api/hunt/stream", streamHandler(hub))
	mux.HandleFunc("/api/nodes/reserve", reserveNodeHandler(store, cfg))
	mux.HandleFunc("/api/nodes/arrive", arriveNodeHandler(store, cfg))
	mux.HandleFunc("/api/nodes/collect", collectNodeHandler(store, cfg, hub))
	mux.HandleFunc("/api/competitions/submit-score", submitScoreHandler(bridge))
	mux.HandleFunc("/api/admin/spawn", adminSpawnHandler(spawns, adminSecret))
	mux.HandleFunc("/api/admin/nodes", adminNodeHandler(store, adminSecret))
	mux.HandleFunc("/api/admin/wipe", adminWipeHandler(store, adminSecret))
}
