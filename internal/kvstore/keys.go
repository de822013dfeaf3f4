package kvstore

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a stable, collision-resistant key fragment derived
// from raw content. Identical content always produces the same fragment.
func Fingerprint(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// AnalysisKey addresses cached section analyses. Same (user, section,
// content) always maps to the same slot.
func AnalysisKey(userID, section, content string) string {
	return "analysis:" + userID + ":" + section + ":" + Fingerprint(content)
}

// JobParseKey addresses cached job-description extractions.
func JobParseKey(userID, content string) string {
	return "job-parse:" + userID + ":" + Fingerprint(content)
}

// SettingsKey addresses persisted user settings.
func SettingsKey(userID string) string {
	return "settings:" + userID
}
