package main

import (
	"mod-update-notifier/cmd"
	"mod-update-notifier/logger"

	_ "go.uber.org/automaxprocs/maxprocs"
)

func main() {
	defer logger.Sync() // Ensure logs are flushed on exit
	cmd.Execute()
}
