package main

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"go.uber.org/zap"

	"music_police/internal/app"
	"music_police/internal/config"
	"music_police/internal/logger"
)

var (
	initOnce sync.Once
	initErr  error
	ginProxy *ginadapter.GinLambda
)

// initApp builds the app once per container; warm invocations reuse it
func initApp(ctx context.Context) error {
	initOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		if err := logger.Init(cfg.LogLevel); err != nil {
			initErr = err
			return
		}
		application, err := app.New(ctx, cfg)
		if err != nil {
			initErr = err
			return
		}
		ginProxy = ginadapter.New(application.Router)
	})
	return initErr
}

func handleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := initApp(ctx); err != nil {
		logger.GetLogger().Error("failed to initialize app", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: 500, Body: "service unavailable"}, nil
	}
	return ginProxy.ProxyWithContext(ctx, req)
}

func main() {
	if err := initApp(context.Background()); err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	lambda.Start(handleRequest)
}
