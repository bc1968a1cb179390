package auth

import "time"

const (
	// Token constants.
	TokenKeySize     = 32
	DefaultAccessTTL = 24 * time.Hour

	// BearerPrefix is the scheme prefix of an Authorization header.
	BearerPrefix = "Bearer "
)
