// Package learner holds the learner id conventions shared by the learning
// components.
package learner

import "strings"

// DefaultUserID scopes state for hosts that only ever serve one learner.
const DefaultUserID = "default"

// ID trims userID and maps blanks to DefaultUserID.
func ID(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DefaultUserID
	}
	return userID
}
