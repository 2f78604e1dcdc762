package authcmder_test

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/careline/cmd/careline/auth"
	"github.com/papercomputeco/careline/pkg/credentials"
)

const testGateway = "http://gw.test"

func jwtWithExpiry(exp time.Time) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "nurse-7",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	Expect(err).NotTo(HaveOccurred())
	return tok
}

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	newCmd := func(stdin string, args ...string) *cobra.Command {
		cmd := authcmder.NewAuthCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .careline/ config directory")
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--config-dir", tmpDir, "--gateway", testGateway))
		return cmd
	}

	storedToken := func() string {
		mgr, err := credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		tok, err := mgr.GetToken(testGateway)
		Expect(err).NotTo(HaveOccurred())
		return tok
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "auth-test-*")
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth"))
			Expect(cmd.Short).NotTo(BeEmpty())
			Expect(cmd.Flags().Lookup("show")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("gateway")).NotTo(BeNil())
		})
	})

	Describe("storing a token", func() {
		It("reads the token from piped stdin", func() {
			Expect(newCmd("opaque-token\n").Execute()).To(Succeed())
			Expect(storedToken()).To(Equal("opaque-token"))
			Expect(out.String()).To(ContainSubstring("no expiry"))
		})

		It("strips a Bearer prefix", func() {
			Expect(newCmd("Bearer abc\n").Execute()).To(Succeed())
			Expect(storedToken()).To(Equal("abc"))
		})

		It("shows the expiry of a JWT", func() {
			tok := jwtWithExpiry(time.Now().Add(2 * time.Hour))
			Expect(newCmd(tok + "\n").Execute()).To(Succeed())
			Expect(storedToken()).To(Equal(tok))
			Expect(out.String()).To(ContainSubstring("Expires at"))
		})

		It("rejects an expired JWT", func() {
			tok := jwtWithExpiry(time.Now().Add(-time.Hour))
			Expect(newCmd(tok + "\n").Execute()).To(MatchError(ContainSubstring("expired")))
			Expect(storedToken()).To(BeEmpty())
		})

		It("rejects empty input", func() {
			Expect(newCmd("  \n").Execute()).To(HaveOccurred())
			Expect(newCmd("").Execute()).To(HaveOccurred())
		})
	})

	Describe("--show flag", func() {
		It("reports when no token is stored", func() {
			Expect(newCmd("", "--show").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No session token stored"))
		})

		It("shows a truncated token", func() {
			Expect(newCmd("abcdefghijklmnopqrstuvwxyz\n").Execute()).To(Succeed())
			out.Reset()

			Expect(newCmd("", "--show").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("abcdefghijkl..."))
			Expect(out.String()).NotTo(ContainSubstring("xyz"))
		})
	})

	Describe("--remove flag", func() {
		It("removes the stored token", func() {
			Expect(newCmd("abc\n").Execute()).To(Succeed())
			Expect(newCmd("", "--remove").Execute()).To(Succeed())
			Expect(storedToken()).To(BeEmpty())
		})
	})
})
