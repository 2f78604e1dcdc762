package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew treats a token expiring this soon as already expired, so a
// request is not sent with a token that lapses in flight.
const expirySkew = 30 * time.Second

// TokenExpiry returns the expiry of a JWT session token. The signature is not
// verified; that is the gateway's job. ok is false for opaque tokens and for
// JWTs without an exp claim.
func TokenExpiry(token string) (expiry time.Time, ok bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// TokenExpired reports whether token carries an exp claim that is at or
// before now, allowing for a small skew.
func TokenExpired(token string, now time.Time) bool {
	expiry, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !now.Add(expirySkew).Before(expiry)
}
