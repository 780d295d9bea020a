package main

import (
	"context"
	"log"

	"github.com/pilab-dev/glass-analytics/cmd/glassctl/cmd"
	"github.com/pilab-dev/glass-analytics/tracing"
)

func main() {
	tp, err := tracing.InitTracerProvider("glassctl")
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}

	// Flush buffered spans on exit.
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
