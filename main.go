package main

import (
	"os"

	"github.com/tphakala/nirspec-go/cmd"
	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/device"
	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/logging"
)

const (
	exitFatalInit = 1
	exitBindFail  = 2
)

func main() {
	logging.Init()

	settings := conf.Setting()
	rootCmd := cmd.RootCommand(settings)

	if err := rootCmd.Execute(); err != nil {
		logging.Error("fatal", "error", err)
		if errors.Is(err, device.ErrBindFailed) {
			os.Exit(exitBindFail)
		}
		os.Exit(exitFatalInit)
	}
}
