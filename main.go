package main

import (
	"os"

	"intellisurf/cmd"
)

// @title                       IntelliSurf API
// @version                     1.0
// @description                 Attachment-aware conversation bridge in front of an ADK agent server.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Bearer {token}
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
