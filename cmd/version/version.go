// Package versioncmder provides the version command.
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/utils"
)

type buildInfo struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"build_time"`
	Go        string `json:"go"`
	UserAgent string `json:"user_agent"`
}

type versionCommander struct {
	out     io.Writer
	jsonOut bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the careline version",
		Long:  "Print the version, commit and build time of this careline binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print build information as JSON")

	return cmd
}

func (c *versionCommander) run() error {
	info := buildInfo{
		Version:   utils.Version,
		Sha:       utils.Sha,
		Buildtime: utils.Buildtime,
		Go:        runtime.Version(),
		UserAgent: utils.UserAgent(),
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(c.out, "Version: %s\nSha: %s\nBuilt at: %s\nGo: %s\n", info.Version, info.Sha, info.Buildtime, info.Go)
	return nil
}
