package main

import (
	"log"

	"github.com/MrSnakeDoc/linkpocket/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ linkpocket failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ linkpocket stopped with error: %v", err)
	}
}
