package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

var (
	errDuplicateRun        = errors.New("duplicate run submission")
	errUpstreamUnavailable = errors.New("competition service unavailable")
	errUpstreamMalformed   = errors.New("competition service returned malformed response")
)

type scoreSubmission struct {
	CompetitionID string `json:"competitionId"`
	WalletAddress string `json:"walletAddress"`
	DisplayName   string `json:"displayName"`
	Score         int64  `json:"score"`
	RunID         string `json:"runId"`
	PowerUpsUsed  int    `json:"powerUpsUsed"`
}

type scoreResult struct {
	Rank           int  `json:"rank"`
	IsNewHighScore bool `json:"isNewHighScore"`
}

type upstreamScoreResponse struct {
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	Rank           int    `json:"rank,omitempty"`
	IsNewHighScore bool   `json:"isNewHighScore,omitempty"`
}

// competitionBridge forwards score submissions to the external competition
// service behind an HMAC trust boundary and suppresses duplicate runs.
type competitionBridge struct {
	cfg    competitionConfig
	client *http.Client
	seen   *runCache
	now    func() time.Time
}

func newCompetitionBridge(cfg competitionConfig, seen *runCache) *competitionBridge {
	return &competitionBridge{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		seen:   seen,
		now:    time.Now,
	}
}

// upstreamRejection is a definitive answer from the competition service, as
// opposed to the transport-level failures above.
type upstreamRejection struct {
	Code string
}

func (e *upstreamRejection) Error() string {
	return "competition service rejected submission: " + e.Code
}

// SubmitScore signs and forwards one submission. The dedup set only grows on
// confirmed acceptance, so a failed attempt stays retryable under the same
// runId.
func (b *competitionBridge) SubmitScore(sub scoreSubmission) (*scoreResult, error) {
	dedupKey := sub.CompetitionID + ":" + sub.RunID
	if b.seen.Contains(dedupKey) {
		return nil, errDuplicateRun
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, b.cfg.BaseURL+"/api/competitions/scores", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(b.now().UTC().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Roachy-Timestamp", timestamp)
	req.Header.Set("X-Roachy-App-Id", b.cfg.AppID)
	req.Header.Set("X-Roachy-Signature", signScoreSubmission(b.cfg.Secret, timestamp, sub))

	resp, err := b.client.Do(req)
	if err != nil {
		// Timeouts and transport errors are upstream failures, never a
		// silent success.
		return nil, errUpstreamUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errUpstreamUnavailable
	}

	var decoded upstreamScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errUpstreamMalformed
	}

	if !decoded.OK {
		code := decoded.Error
		if code == "" {
			return nil, errUpstreamMalformed
		}
		return nil, &upstreamRejection{Code: code}
	}

	b.seen.Add(dedupKey)
	return &scoreResult{Rank: decoded.Rank, IsNewHighScore: decoded.IsNewHighScore}, nil
}

// The canonical string covers the fields the external service re-verifies:
// timestamp + competitionId + walletAddress + score.
func signScoreSubmission(secret, timestamp string, sub scoreSubmission) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(sub.CompetitionID))
	mac.Write([]byte(sub.WalletAddress))
	mac.Write([]byte(strconv.FormatInt(sub.Score, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
