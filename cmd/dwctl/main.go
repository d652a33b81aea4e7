package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// usage is printed for flag errors only; runE sets SilenceUsage
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
