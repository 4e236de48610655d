package main

import (
	"os"

	"github.com/bassista/sheetwatch/internal/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.WithComponent("main").Error(err)
		os.Exit(1)
	}
}
