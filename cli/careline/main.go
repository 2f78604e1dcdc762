package main

import (
	"os"

	carelinecmder "github.com/papercomputeco/careline/cmd/careline"
)

func main() {
	cmd := carelinecmder.NewCarelineCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
