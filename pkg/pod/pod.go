// Package pod defines the pod record shared by the keepalive emitter, the
// sequence actor, and the leader elector, plus the base-62 key derivation
// used to name each pod's KV directory entry.
package pod

import (
	"encoding/json"
	"net"
)

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Record is a single slave's published state under /<prefix>/pods/<key>.
type Record struct {
	App     string          `json:"app"`
	Role    string          `json:"role"`
	ID      string          `json:"id"`
	IP      string          `json:"ip"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int64           `json:"seq"`
	Down    bool            `json:"down,omitempty"`
}

// KeyForIP base-62 encodes an IPv4 address's 32-bit network-byte-order
// integer using the alphabet [0-9a-zA-Z]. IP 0.0.0.0 encodes to the literal
// "0" rather than the empty string (spec.md §9 flags this as a source edge
// case requiring an explicit choice).
func KeyForIP(ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil {
		return ""
	}
	v4 := addr.To4()
	if v4 == nil {
		return ""
	}

	n := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
	if n == 0 {
		return "0"
	}

	var buf []byte
	for n > 0 {
		buf = append(buf, base62Alphabet[n%62])
		n /= 62
	}
	reverse(buf)
	return string(buf)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Parse decodes a pod record from its JSON wire form (the PUT /ping body).
func Parse(body []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return Record{}, err
	}
	if r.Key == "" {
		r.Key = KeyForIP(r.IP)
	}
	return r, nil
}

// Marshal encodes r back to its JSON wire form.
func Marshal(r Record) ([]byte, error) {
	return json.Marshal(r)
}
