package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// huntConfig carries the tunable policy knobs for the hunt gateway. The
// thresholds are product decisions, not invariants, so everything here can be
// overridden from the environment.
type huntConfig struct {
	MaxAccuracyMeters  float64
	MaxSpeedMPS        float64
	MinElapsed         time.Duration
	CatchRadiusMeters  float64
	ArriveRadiusMeters float64
	SpawnTTL           time.Duration
	ReservationTTL     time.Duration
	SweepInterval      time.Duration
	TerminalRetention  time.Duration
}

func loadHuntConfig() huntConfig {
	return huntConfig{
		MaxAccuracyMeters:  parseEnvFloat("HUNT_MAX_ACCURACY_M", 100),
		MaxSpeedMPS:        parseEnvFloat("HUNT_MAX_SPEED_MPS", 55),
		MinElapsed:         time.Duration(parseEnvInt("HUNT_MIN_ELAPSED_SECONDS", 2)) * time.Second,
		CatchRadiusMeters:  parseEnvFloat("HUNT_CATCH_RADIUS_M", 75),
		ArriveRadiusMeters: parseEnvFloat("HUNT_ARRIVE_RADIUS_M", 50),
		SpawnTTL:           time.Duration(parseEnvInt("HUNT_SPAWN_TTL_SECONDS", 900)) * time.Second,
		ReservationTTL:     time.Duration(parseEnvInt("HUNT_RESERVATION_TTL_SECONDS", 600)) * time.Second,
		SweepInterval:      time.Duration(parseEnvInt("HUNT_SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
		TerminalRetention:  time.Duration(parseEnvInt("HUNT_TERMINAL_RETENTION_SECONDS", 3600)) * time.Second,
	}
}

type competitionConfig struct {
	BaseURL string
	AppID   string
	Secret  string
	Timeout time.Duration
}

// loadCompetitionConfig fails when the shared secret or base URL is missing.
// The submit-score route must refuse traffic rather than forward unsigned
// requests.
func loadCompetitionConfig() (competitionConfig, error) {
	cfg := competitionConfig{
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("COMPETITION_BASE_URL")), "/"),
		AppID:   strings.TrimSpace(os.Getenv("COMPETITION_APP_ID")),
		Secret:  strings.TrimSpace(os.Getenv("COMPETITION_HMAC_SECRET")),
		Timeout: time.Duration(parseEnvInt("COMPETITION_TIMEOUT_SECONDS", 10)) * time.Second,
	}
	if cfg.Secret == "" {
		return cfg, errors.New("COMPETITION_HMAC_SECRET is not set")
	}
	if cfg.BaseURL == "" {
		return cfg, errors.New("COMPETITION_BASE_URL is not set")
	}
	if cfg.AppID == "" {
		cfg.AppID = "roachy-hunt"
	}
	return cfg, nil
}

func parseEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
