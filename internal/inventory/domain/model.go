package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Entry is one (user, card) holding.
type Entry struct {
	UserID          string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	CardID          string    `gorm:"primaryKey;type:varchar(64)" json:"card_id"`
	Count           int       `gorm:"column:quantity;not null;default:0;check:chk_user_cards_quantity,quantity >= 0" json:"count"`
	FirstObtainedAt time.Time `gorm:"not null" json:"first_obtained_at"`
	LastObtainedAt  time.Time `gorm:"not null" json:"last_obtained_at"`
}

func (Entry) TableName() string { return "user_cards" }

type Repository interface {
	// LockEntries reads the user's rows for cardIDs under a row lock, ordered by card id.
	LockEntries(ctx context.Context, tx *gorm.DB, userID string, cardIDs []string) ([]Entry, error)
	// Decrement removes n copies, failing with ErrInsufficient when fewer are held.
	Decrement(ctx context.Context, tx *gorm.DB, userID, cardID string, n int) error
	Increment(ctx context.Context, tx *gorm.DB, userID, cardID string, n int, at time.Time) error
	Snapshot(ctx context.Context, db *gorm.DB, userID string) ([]Entry, error)
}

type Service interface {
	List(ctx context.Context, userID string) ([]Entry, error)
	Grant(ctx context.Context, userID, cardID string, n int) error
}

var (
	ErrInsufficient  = errors.New("insufficient_quantity")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidUserID = errors.New("invalid_user_id")
)

// Hash is a deterministic digest over a user's full inventory state.
// Zero-count rows are skipped so an emptied holding hashes like a missing one.
func Hash(entries []Entry) string {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Count > 0 {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CardID < sorted[j].CardID })

	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(e.CardID))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.Itoa(e.Count)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
