package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"babelfish/internal/app"
	"babelfish/internal/bootstrap"
	analysisRPC "babelfish/microservices/proto"
	"babelfish/microservices/usecase"
)

func main() {
	cfgPath := ".env"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := bootstrap.Setup(cfgPath)
	if err != nil {
		zap.NewExample().Sugar().Errorw("failed to setup configuration", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	analysisApp, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("failed to build analysis service", "error", err)
	}
	defer analysisApp.Close(context.Background())

	lis, err := net.Listen("tcp", cfg.GrpcPort)
	if err != nil {
		logger.Fatalw("cant listen port", "port", cfg.GrpcPort, "error", err)
	}

	server := grpc.NewServer()
	analysisRPC.RegisterAnalysisServiceServer(server, usecase.NewAnalysisUseCase(analysisApp.UseCase, logger))

	go func() {
		<-ctx.Done()
		logger.Info("received shutdown signal")
		server.GracefulStop()
	}()

	logger.Infow("starting grpc server", "port", cfg.GrpcPort, "engines", cfg.EnginePoolSize)
	if err := server.Serve(lis); err != nil {
		logger.Errorw("grpc server stopped", "error", err)
	}
}
