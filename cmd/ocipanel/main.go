// Command ocipanel runs the Telegram control panel for Oracle Cloud tenancies.
package main

import (
	"errors"
	"log"

	"github.com/m3rciful/ocipanel/core/cmd"
	"github.com/m3rciful/ocipanel/internal/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "OCIPANEL_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.Load,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil && !errors.Is(err, cmd.ErrVersion) {
		log.Fatal(err)
	}
}
