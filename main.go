package main

import (
	"log"

	"github.com/fixxdigital/myob-mcp-server/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
