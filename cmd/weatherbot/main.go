package main

import (
	"log"
	"os"

	"github.com/m3rciful/weatherbot/core/cmd"
)

func main() {
	if err := cmd.Run(cmd.Options{DefaultConfigPath: "config.yaml"}); err != nil {
		log.Printf("weatherbot: %v", err)
		os.Exit(1)
	}
}
