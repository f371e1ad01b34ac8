package main

import (
	"calendar-engine/core/logger"
	"calendar-engine/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", err)
	}
}
