package main

import (
	"log"

	"github.com/davidocha/coinvault/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("coinvault api: %v", err)
	}
}
