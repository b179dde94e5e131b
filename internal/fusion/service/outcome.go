package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smallbiznis/cardforge/internal/fusion/domain"
	fusionlogdomain "github.com/smallbiznis/cardforge/internal/fusionlog/domain"
	"github.com/smallbiznis/cardforge/internal/probability"
	"github.com/smallbiznis/cardforge/internal/signature"
	"github.com/smallbiznis/cardforge/pkg/db"
	"gorm.io/datatypes"
)

// toOutcome builds the response from the ledger row alone, so fresh commits
// and replays of the same fusion id serialize identically.
func toOutcome(entry *fusionlogdomain.Entry, replayed bool) (*domain.Outcome, error) {
	out := &domain.Outcome{
		FusionID:            entry.FusionID,
		UserID:              entry.UserID,
		Success:             true,
		FusionSuccess:       entry.Success,
		SuccessRate:         entry.SuccessRate,
		EngineVersion:       entry.EngineVersion,
		PolicyVersion:       entry.PolicyVersion,
		UserTier:            entry.UserTier,
		PityBefore:          entry.PityBefore,
		InventoryHashBefore: entry.InventoryHashBefore,
		InventoryHashAfter:  entry.InventoryHashAfter,
		Signature:           entry.HMACSignature,
		SignatureKeyID:      entry.SignatureKeyID,
		ProcessingTimeMs:    entry.ProcessingTimeMs,
		CreatedAt:           entry.SignedAt.UTC(),
		IsIdempotent:        replayed,
	}

	if err := unmarshalJSON(entry.MaterialsUsed, &out.MaterialsUsed); err != nil {
		return nil, fmt.Errorf("decode materials: %w", err)
	}
	if err := unmarshalJSON(entry.Breakdown, &out.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	if err := unmarshalJSON(entry.Candidates, &out.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	if entry.Success {
		var selected domain.SelectedOutcome
		if err := unmarshalJSON(entry.SelectedOutcome, &selected); err != nil {
			return nil, fmt.Errorf("decode selected outcome: %w", err)
		}
		out.ResultCard = &domain.ResultCard{
			ID:          selected.CardID,
			Name:        selected.CardName,
			Rank:        selected.Rank,
			Multipliers: selected.Multipliers,
		}
	}
	if out.Candidates == nil {
		out.Candidates = []probability.Candidate{}
	}
	return out, nil
}

func payloadOf(entry *fusionlogdomain.Entry) signature.Payload {
	rank := ""
	if entry.ResultRank != nil {
		rank = *entry.ResultRank
	}
	return signature.Payload{
		FusionID:     entry.FusionID,
		UserID:       entry.UserID,
		Success:      entry.Success,
		SuccessRate:  entry.SuccessRate,
		SelectedRank: rank,
		Timestamp:    entry.SignedAt,
	}
}

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// classify maps storage and collaborator errors onto the fusion taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *domain.Error
	if errors.As(err, &fe) {
		return fe
	}
	if db.IsUnavailableErr(err) {
		return domain.E(domain.KindStorageUnavailable, op, err)
	}
	return domain.E(domain.KindInternal, op, err)
}
