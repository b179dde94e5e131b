package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/smallbiznis/cardforge/internal/config"
)

var (
	ErrNoKeys        = errors.New("signature_keys_missing")
	ErrUnknownKey    = errors.New("signature_key_unknown")
	ErrActiveMissing = errors.New("signature_active_key_missing")
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func Verify(payload []byte, sig string, secret []byte) bool {
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// Signer signs with the active key and verifies with any known key, so
// rotated keys keep old ledger rows verifiable.
type Signer struct {
	keys   map[string][]byte
	active string
}

func NewSigner(keys map[string]string, active string) (*Signer, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	s := &Signer{keys: make(map[string][]byte, len(keys))}
	for kid, secret := range keys {
		kid = strings.TrimSpace(kid)
		if kid == "" || secret == "" {
			continue
		}
		s.keys[kid] = []byte(secret)
	}
	if len(s.keys) == 0 {
		return nil, ErrNoKeys
	}

	active = strings.TrimSpace(active)
	if active == "" {
		// lexically greatest kid wins when none is pinned
		kids := s.KeyIDs()
		active = kids[len(kids)-1]
	}
	if _, ok := s.keys[active]; !ok {
		return nil, ErrActiveMissing
	}
	s.active = active
	return s, nil
}

// NewFromConfig reads FUSION_HMAC_KEYS and FUSION_HMAC_ACTIVE_KEY.
func NewFromConfig(cfg config.Config) (*Signer, error) {
	return NewSigner(cfg.Fusion.HMACKeys, cfg.Fusion.HMACActiveKey)
}

func (s *Signer) ActiveKeyID() string { return s.active }

func (s *Signer) KeyIDs() []string {
	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

// Sign returns the signature and the id of the key that produced it.
func (s *Signer) Sign(p Payload) (string, string) {
	return Sign(p.Canonical(), s.keys[s.active]), s.active
}

func (s *Signer) Verify(p Payload, sig, kid string) (bool, error) {
	key, ok := s.keys[strings.TrimSpace(kid)]
	if !ok {
		return false, ErrUnknownKey
	}
	return Verify(p.Canonical(), sig, key), nil
}
