package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"casecontext-backend/internal/domain/contextrec"
)

const keyPrefix = "ctx"

// BuildKey constructs the cache key for a case and effective dimension set.
// Scopes are resolved to dimension sets before keying, and the fingerprint
// is order-independent, so {WHO,WHERE} and {WHERE,WHO} share one key. The
// client and case ids stay in the clear so case-wide invalidation can work
// off a key prefix.
func BuildKey(key contextrec.CaseKey, dims []contextrec.DimensionName) string {
	return CasePrefix(key) + dimsetFingerprint(dims)
}

// CasePrefix returns the shared key prefix for every entry of a case.
func CasePrefix(key contextrec.CaseKey) string {
	return keyPrefix + ":" + url.QueryEscape(key.ClientID) + ":" + url.QueryEscape(key.CaseID) + ":"
}

// dimsetFingerprint hashes the canonical dimension set. Input is assumed
// normalized (deduplicated, canonical order) by contextrec.
func dimsetFingerprint(dims []contextrec.DimensionName) string {
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	sum := sha256.Sum256([]byte(strings.Join(names, "|")))
	return hex.EncodeToString(sum[:8])
}
