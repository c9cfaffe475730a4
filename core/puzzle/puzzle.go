// Package puzzle checks hash-chain proof-of-work solutions attached to
// encrypted currency packets.
package puzzle

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// TypeHashChain is the only puzzle type the verifier accepts.
const TypeHashChain = "hash-chain"

// Verify checks a solution against a packet payload. The digest of
// sha256(seed + ":" + nonce) in lowercase hex must match the first
// difficulty characters of target_prefix. On success it returns the
// payload's reward_mamp; any shape mismatch or failed check reports ok
// false.
func Verify(payload, solution map[string]any) (reward int64, ok bool) {
	if payload == nil || solution == nil {
		return 0, false
	}
	if t, _ := payload["type"].(string); t != TypeHashChain {
		return 0, false
	}
	difficulty, ok := intField(payload, "difficulty", 0)
	if !ok {
		return 0, false
	}
	target, ok := payload["target_prefix"].(string)
	if !ok {
		return 0, false
	}
	nonce, ok := solution["nonce"].(string)
	if !ok {
		return 0, false
	}
	seed := stringField(payload, "seed")

	sum := sha256.Sum256([]byte(seed + ":" + nonce))
	digest := hex.EncodeToString(sum[:])

	if difficulty > int64(len(target)) {
		difficulty = int64(len(target))
	}
	if difficulty < 0 {
		difficulty = 0
	}
	if !strings.HasPrefix(digest, target[:difficulty]) {
		return 0, false
	}

	reward, ok = intValue(payload["reward_mamp"])
	if !ok || reward < 0 {
		return 0, false
	}
	return reward, true
}

func intField(m map[string]any, key string, def int64) (int64, bool) {
	v, present := m[key]
	if !present {
		return def, true
	}
	return intValue(v)
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// intValue accepts the integer encodings JSON decoding produces. Booleans
// and fractional numbers are rejected.
func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
