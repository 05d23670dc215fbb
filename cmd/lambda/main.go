package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Conceptual-Machines/daytale-api/internal/app"
	"github.com/Conceptual-Machines/daytale-api/internal/config"
	"github.com/Conceptual-Machines/daytale-api/internal/serverless"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	app.InitSentry(cfg, releaseVersion)

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize:", err)
	}

	adapter := serverless.NewAdapter(a.Journal)
	lambda.Start(func(ctx context.Context, payload json.RawMessage) (events.APIGatewayV2HTTPResponse, error) {
		// The sandbox may be frozen after returning, so flush per invocation
		defer a.Close()
		return adapter.Invoke(ctx, payload)
	})
}
