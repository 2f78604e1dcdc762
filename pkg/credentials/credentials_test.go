package credentials_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/careline/pkg/credentials"
)

const gateway = "http://localhost:8090/v1/chat/completions"

var _ = Describe("Manager", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credentials-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("NewManager", func() {
		It("creates a manager with an override directory", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Gateways).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[gateways."https://example.supabase.co/functions/v1/chat"]
token = "session-token"
`
			err := os.WriteFile(filepath.Join(tmpDir, "credentials.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			tok, err := mgr.GetToken("https://example.supabase.co/functions/v1/chat")
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("session-token"))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "credentials.toml"), []byte("not valid [[["), 0o600)
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).To(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("tokens", func() {
		var mgr *credentials.Manager

		BeforeEach(func() {
			var err error
			mgr, err = credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("stores a token with restricted permissions", func() {
			Expect(mgr.SetToken(gateway, "abc")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))

			tok, err := mgr.GetToken(gateway)
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("abc"))

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Gateways[gateway].SavedAt.IsZero()).To(BeFalse())
		})

		It("returns an empty token for an unknown gateway", func() {
			tok, err := mgr.GetToken("http://nowhere")
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(BeEmpty())
		})

		It("removes a token", func() {
			Expect(mgr.SetToken(gateway, "abc")).To(Succeed())
			Expect(mgr.SetToken("http://other", "def")).To(Succeed())
			Expect(mgr.RemoveToken(gateway)).To(Succeed())

			gateways, err := mgr.ListGateways()
			Expect(err).NotTo(HaveOccurred())
			Expect(gateways).To(Equal([]string{"http://other"}))
		})

		It("lists gateways sorted", func() {
			Expect(mgr.SetToken("http://b", "1")).To(Succeed())
			Expect(mgr.SetToken("http://a", "2")).To(Succeed())

			gateways, err := mgr.ListGateways()
			Expect(err).NotTo(HaveOccurred())
			Expect(gateways).To(Equal([]string{"http://a", "http://b"}))
		})

		It("rejects saving nil credentials", func() {
			Expect(mgr.Save(nil)).To(HaveOccurred())
		})
	})

	Describe("TokenSource", func() {
		var mgr *credentials.Manager

		BeforeEach(func() {
			var err error
			mgr, err = credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			GinkgoT().Setenv(credentials.TokenEnvVar, "")
		})

		It("returns the stored token", func() {
			Expect(mgr.SetToken(gateway, "stored")).To(Succeed())

			tok, err := credentials.NewTokenSource(mgr, gateway).Token(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("stored"))
		})

		It("prefers the environment", func() {
			Expect(mgr.SetToken(gateway, "stored")).To(Succeed())
			GinkgoT().Setenv(credentials.TokenEnvVar, "from-env")

			tok, err := credentials.NewTokenSource(mgr, gateway).Token(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("from-env"))
		})

		It("reports a missing token", func() {
			_, err := credentials.NewTokenSource(mgr, gateway).Token(context.Background())
			Expect(err).To(MatchError(credentials.ErrNoToken))
		})
	})
})
