package main

import (
	"os"

	"school_resources_backend/pkg/utils"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		utils.LogError(err, "Command failed")
		os.Exit(1)
	}
}
