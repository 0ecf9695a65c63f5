package image

import "strings"

const (
	UnavailablePlaceholderURL = "https://placehold.co/1024x1024/A7C1E2/FFF?text=Image+Service+Unavailable"
	SafetyPlaceholderURL      = "https://placehold.co/1024x1024/A7C1E2/FFF?text=Safety+Filter+Triggered"
)

var safetyMarkers = []string{
	"safety",
	"content_policy",
	"content policy",
	"moderation_blocked",
}

// PlaceholderFor returns the placeholder URL shown for a non-success outcome.
func PlaceholderFor(outcome Outcome) string {
	if outcome == OutcomePolicyRejected {
		return SafetyPlaceholderURL
	}
	return UnavailablePlaceholderURL
}

// isSafetyError reports whether the error text carries a content-policy marker.
func isSafetyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range safetyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
