package domain

import "time"

// TemporaryAsset is an image uploaded to a short-lived public location
// solely so a URL-based provider can fetch it. Every asset created
// during a request is deleted by the end of that request; a time-based
// sweep catches anything that slips through.
type TemporaryAsset struct {
	Key       string
	URL       string
	Owner     string
	CreatedAt time.Time
}
