package domain

import (
	"context"
	"time"

	fusionlogdomain "github.com/smallbiznis/cardforge/internal/fusionlog/domain"
	"github.com/smallbiznis/cardforge/internal/probability"
)

// Request is one fusion attempt. FusionID is generated when empty.
type Request struct {
	UserID    string
	SessionID string
	FusionID  string
	Materials []string
}

type ResultCard struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name"`
	Rank        string                      `json:"rank"`
	Multipliers probability.StatMultipliers `json:"multipliers"`
}

// Outcome is the caller-facing view of a ledger entry. Success reports that
// the request was processed; FusionSuccess is the drawn result.
type Outcome struct {
	FusionID            string                     `json:"fusion_id"`
	UserID              string                     `json:"user_id"`
	Success             bool                       `json:"success"`
	FusionSuccess       bool                       `json:"fusion_success"`
	SuccessRate         float64                    `json:"success_rate"`
	Breakdown           probability.Breakdown      `json:"success_rate_breakdown"`
	Candidates          []probability.Candidate    `json:"candidates"`
	ResultCard          *ResultCard                `json:"result_card"`
	MaterialsUsed       []fusionlogdomain.Material `json:"materials_used"`
	EngineVersion       string                     `json:"engine_version"`
	PolicyVersion       string                     `json:"policy_version"`
	UserTier            string                     `json:"user_tier"`
	PityBefore          int                        `json:"pity_before"`
	InventoryHashBefore string                     `json:"inventory_hash_before"`
	InventoryHashAfter  string                     `json:"inventory_hash_after"`
	Signature           string                     `json:"hmac_signature"`
	SignatureKeyID      string                     `json:"signature_key_id"`
	ProcessingTimeMs    int64                      `json:"processing_time_ms"`
	CreatedAt           time.Time                  `json:"created_at"`
	IsIdempotent        bool                       `json:"is_idempotent"`
}

// SelectedOutcome is stored in the ledger for successful fusions.
type SelectedOutcome struct {
	Rank        string                      `json:"rank"`
	CardID      string                      `json:"card_id"`
	CardName    string                      `json:"card_name"`
	Multipliers probability.StatMultipliers `json:"multipliers"`
	Roll        float64                     `json:"roll"`
	RankRoll    float64                     `json:"rank_roll"`
}

type VerifyResult struct {
	FusionID string `json:"fusion_id"`
	KeyID    string `json:"signature_key_id"`
	Valid    bool   `json:"valid"`
}

type HistoryPage struct {
	Outcomes   []Outcome `json:"fusions"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type Service interface {
	Commit(ctx context.Context, req Request) (*Outcome, error)
	// Get returns the outcome only to the user who owns it.
	Get(ctx context.Context, userID, fusionID string) (*Outcome, error)
	// Verify recomputes the stored signature.
	Verify(ctx context.Context, fusionID string) (*VerifyResult, error)
	History(ctx context.Context, userID, cursor string, limit int) (*HistoryPage, error)
}
