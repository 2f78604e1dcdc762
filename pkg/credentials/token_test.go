package credentials_test

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/careline/pkg/credentials"
)

func signedToken(claims jwt.MapClaims) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	Expect(err).NotTo(HaveOccurred())
	return tok
}

var _ = Describe("TokenExpiry", func() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	It("reads the exp claim without verifying the signature", func() {
		tok := signedToken(jwt.MapClaims{"sub": "patient-1", "exp": now.Add(time.Hour).Unix()})

		expiry, ok := credentials.TokenExpiry(tok)
		Expect(ok).To(BeTrue())
		Expect(expiry.Unix()).To(Equal(now.Add(time.Hour).Unix()))
	})

	It("reports no expiry for opaque tokens", func() {
		_, ok := credentials.TokenExpiry("opaque-session-token")
		Expect(ok).To(BeFalse())
	})

	It("reports no expiry when exp is missing", func() {
		_, ok := credentials.TokenExpiry(signedToken(jwt.MapClaims{"sub": "doctor-7"}))
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("TokenExpired", func() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	It("is false for a token valid well into the future", func() {
		tok := signedToken(jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
		Expect(credentials.TokenExpired(tok, now)).To(BeFalse())
	})

	It("is true for a token in the past", func() {
		tok := signedToken(jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
		Expect(credentials.TokenExpired(tok, now)).To(BeTrue())
	})

	It("is true for a token about to expire", func() {
		tok := signedToken(jwt.MapClaims{"exp": now.Add(10 * time.Second).Unix()})
		Expect(credentials.TokenExpired(tok, now)).To(BeTrue())
	})

	It("is false for opaque tokens", func() {
		Expect(credentials.TokenExpired("opaque", now)).To(BeFalse())
	})
})
