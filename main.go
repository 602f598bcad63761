package main

import (
	"github.com/big-comm/bigbuild/cmd"
	"github.com/big-comm/bigbuild/pkg/logger"
	"github.com/big-comm/bigbuild/pkg/telemetry"
)

func main() {
	logger.InitializeWithFallback()
	if err := telemetry.Init("bigbuild"); err != nil {
		logger.L().Warn("Telemetry unavailable: " + err.Error())
	}

	cmd.Execute()
}
