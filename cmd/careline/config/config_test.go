package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/careline/cmd/careline/config"
	"github.com/papercomputeco/careline/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	newCmd := func(args ...string) *cobra.Command {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .careline/ config directory")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "careline-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(newCmd("set", "gateway.url", "https://example.supabase.co").Execute()).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("https://example.supabase.co"))
		})

		It("masks the jwt secret", func() {
			Expect(newCmd("set", "serve.jwt_secret", "hunter2").Execute()).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("hunter2"))
		})

		It("rejects unknown keys", func() {
			Expect(newCmd("set", "invalid_key", "value").Execute()).To(HaveOccurred())
		})

		It("rejects invalid values", func() {
			Expect(newCmd("set", "stream.read_size", "big").Execute()).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(newCmd("set", "gateway.url").Execute()).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(newCmd("set", "gateway.model", "careline-small").Execute()).To(Succeed())
			out.Reset()

			Expect(newCmd("get", "gateway.model").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("careline-small"))
		})

		It("shows not set for empty values", func() {
			Expect(newCmd("get", "capture.dir").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("reveals secrets on request", func() {
			Expect(newCmd("set", "serve.jwt_secret", "hunter2").Execute()).To(Succeed())
			out.Reset()

			Expect(newCmd("get", "serve.jwt_secret").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("********"))
			Expect(out.String()).NotTo(ContainSubstring("hunter2"))

			out.Reset()
			Expect(newCmd("get", "serve.jwt_secret", "--reveal").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("hunter2"))
		})

		It("rejects unknown keys", func() {
			Expect(newCmd("get", "invalid_key").Execute()).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(newCmd("list").Execute()).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring("http://localhost:8090"))
			Expect(out.String()).To(ContainSubstring("[gateway]"))
			Expect(out.String()).To(ContainSubstring("[chat]"))
		})

		It("masks secrets unless revealed", func() {
			Expect(newCmd("set", "serve.jwt_secret", "hunter2").Execute()).To(Succeed())
			out.Reset()

			Expect(newCmd("list").Execute()).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("hunter2"))

			out.Reset()
			Expect(newCmd("list", "--reveal").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("hunter2"))
		})

		It("rejects arguments", func() {
			Expect(newCmd("list", "extra").Execute()).To(HaveOccurred())
		})
	})
})
