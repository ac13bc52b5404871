package main

import (
	"os"

	"github.com/avstrong/rentals/internal/app"
	"github.com/avstrong/rentals/internal/config"
	"github.com/avstrong/rentals/internal/logger"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		logger.Default().LogErrorf("Failed to load config: %v", err.Error())
		os.Exit(1)
	}

	l := logger.New(os.Stderr, conf.LogLevel)

	var exitCode int

	if err := app.Run(l, conf); err != nil {
		l.LogErrorf("Failed to run app: %v", err.Error())

		exitCode = 1
	}

	os.Exit(exitCode)
}
