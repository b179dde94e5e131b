package signature

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Payload is the signed view of a fusion outcome.
type Payload struct {
	FusionID     string
	UserID       string
	Success      bool
	SuccessRate  float64
	SelectedRank string
	Timestamp    time.Time
}

// Canonical renders p as a JSON object with keys in lexical order, the rate in
// shortest round-trip form and the timestamp as RFC3339Nano UTC.
func (p Payload) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "fusionId", quote(p.FusionID), false)
	writeField(&buf, "selectedRank", quote(p.SelectedRank), true)
	writeField(&buf, "success", strconv.FormatBool(p.Success), true)
	writeField(&buf, "successRate", strconv.FormatFloat(p.SuccessRate, 'f', -1, 64), true)
	writeField(&buf, "timestamp", quote(p.Timestamp.UTC().Format(time.RFC3339Nano)), true)
	writeField(&buf, "userId", quote(p.UserID), true)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, key, value string, comma bool) {
	if comma {
		buf.WriteByte(',')
	}
	buf.WriteString(quote(key))
	buf.WriteByte(':')
	buf.WriteString(value)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
