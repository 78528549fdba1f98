package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRepair  = "recordsync/repair/v1"
	DomainRuleSet = "recordsync/ruleset/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RepairHash identifies one repair decision: a rule applied to a specific
// payload of a specific key. The same payload seen twice hashes the same.
func RepairHash(ruleID, key string, fields Fields) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"rule_id": ruleID,
		"key":     key,
		"fields":  fields,
	})
	if err != nil {
		return "", fmt.Errorf("RepairHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRepair, canonical), nil
}

// RuleSetHash fingerprints a rule set so logs can tell rule versions apart.
func RuleSetHash(rules []Rule) (string, error) {
	list := make([]any, len(rules))
	for i, r := range rules {
		require := make([]any, len(r.Require))
		for j, f := range r.Require {
			require[j] = f
		}
		entry := map[string]any{
			"id":         r.ID,
			"collection": r.Collection,
			"require":    require,
			"action":     string(r.Action),
			"reason":     r.Reason,
		}
		if len(r.Patch) > 0 {
			entry["patch"] = r.Patch
		}
		list[i] = entry
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}
