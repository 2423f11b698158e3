package domain

import (
	"time"

	"concierge_backend/platform/timetext"
)

// ThreadsDiverge reports whether the latest proposed times on the client and
// provider threads refer to different instants. Both sides must have a
// proposal on record before divergence can exist; comparisons normalize the
// text first so phrasing differences never count.
//
// The flag this feeds is sticky: once set it survives new messages and only
// an explicit reconciliation clears it, which the service layer enforces.
func ThreadsDiverge(clientProposal, providerProposal *string, reference time.Time) bool {
	if clientProposal == nil || providerProposal == nil {
		return false
	}
	return !timetext.Equal(clientProposal, providerProposal, reference)
}
