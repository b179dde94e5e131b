package signature

import (
	"testing"
	"time"

	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePayload = Payload{
	FusionID:     "fus-1",
	UserID:       "u1",
	Success:      true,
	SuccessRate:  0.75,
	SelectedRank: "S",
	Timestamp:    time.Date(2025, 1, 2, 3, 4, 5, 600, time.FixedZone("WIB", 7*3600)),
}

func TestCanonicalIsStable(t *testing.T) {
	want := `{"fusionId":"fus-1","selectedRank":"S","success":true,"successRate":0.75,"timestamp":"2025-01-01T20:04:05.0000006Z","userId":"u1"}`
	assert.Equal(t, want, string(samplePayload.Canonical()))

	p := samplePayload
	p.SuccessRate = 0.1 + 0.2
	assert.Contains(t, string(p.Canonical()), `"successRate":0.30000000000000004`)

	p.UserID = `we"ird`
	assert.Contains(t, string(p.Canonical()), `"userId":"we\"ird"`)
}

func TestSignAndVerify(t *testing.T) {
	secret := []byte("s3cret")
	sig := Sign(samplePayload.Canonical(), secret)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign(samplePayload.Canonical(), secret))

	assert.True(t, Verify(samplePayload.Canonical(), sig, secret))
	assert.False(t, Verify(samplePayload.Canonical(), sig, []byte("other")))
	assert.False(t, Verify(samplePayload.Canonical(), "not-hex", secret))

	tampered := samplePayload
	tampered.Success = false
	assert.False(t, Verify(tampered.Canonical(), sig, secret))
}

func TestSignerRotation(t *testing.T) {
	old, err := NewSigner(map[string]string{"k1": "one"}, "k1")
	require.NoError(t, err)
	sig, kid := old.Sign(samplePayload)
	assert.Equal(t, "k1", kid)

	rotated, err := NewSigner(map[string]string{"k1": "one", "k2": "two"}, "")
	require.NoError(t, err)
	assert.Equal(t, "k2", rotated.ActiveKeyID())
	assert.Equal(t, []string{"k1", "k2"}, rotated.KeyIDs())

	ok, err := rotated.Verify(samplePayload, sig, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	newSig, newKid := rotated.Sign(samplePayload)
	assert.Equal(t, "k2", newKid)
	assert.NotEqual(t, sig, newSig)

	_, err = rotated.Verify(samplePayload, sig, "k9")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner(nil, "")
	assert.ErrorIs(t, err, ErrNoKeys)
	_, err = NewSigner(map[string]string{" ": "x"}, "")
	assert.ErrorIs(t, err, ErrNoKeys)
	_, err = NewSigner(map[string]string{"k1": "x"}, "k2")
	assert.ErrorIs(t, err, ErrActiveMissing)

	s, err := NewFromConfig(config.Config{Fusion: config.FusionConfig{HMACKeys: map[string]string{"a": "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "a", s.ActiveKeyID())
}
