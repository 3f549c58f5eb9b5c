package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"babelfish/internal/app"
	"babelfish/internal/bootstrap"
	analysisDelivery "babelfish/internal/delivery/analysis"
	mcpDelivery "babelfish/internal/delivery/mcp"
	ownMiddleware "babelfish/internal/middleware"
	analysisRPC "babelfish/microservices/proto"
	"babelfish/microservices/usecase"
)

var version = "dev"

type rootOptions struct {
	cfgPath string
	output  string
	remote  string

	cfg *bootstrap.Config
	log *zap.SugaredLogger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "babelfish",
		Short:         "Chess position analysis backed by a UCI engine",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.Setup(opts.cfgPath)
			if err != nil {
				return fmt.Errorf("failed to setup configuration: %w", err)
			}
			opts.cfg = cfg
			opts.log = bootstrap.NewLogger(cfg.Debug)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", ".env", "config file (.env format)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVar(&opts.remote, "remote", "", "address of a remote AnalysisService to query instead of a local engine")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newAnalyzeCmd(opts),
		newPVCmd(opts),
		newClassifyCmd(opts),
		newVariationsCmd(opts),
		newLegalCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withGrpc bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, and optionally the gRPC service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.cfg, opts.log, withGrpc)
		},
	}
	cmd.Flags().BoolVar(&withGrpc, "grpc", false, "also serve AnalysisService on GRPC_PORT")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			analysisApp, err := app.New(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer analysisApp.Close(context.Background())

			opts.log.Infow("serving mcp on stdio", "version", version)
			return mcpDelivery.NewToolServer(opts.log, analysisApp.UseCase, version).ServeStdio()
		},
	}
}

func serve(ctx context.Context, cfg *bootstrap.Config, log *zap.SugaredLogger, withGrpc bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go handleShutdown(cancel, log)

	analysisApp, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer analysisApp.Close(context.Background())

	warmCtx, warmCancel := context.WithTimeout(ctx, cfg.EngineStartTimeout)
	if err := analysisApp.Pool.Warm(warmCtx); err != nil {
		log.Warnw("engine warm-up failed, engines start on first request", "error", err)
	}
	warmCancel()

	r := chi.NewRouter()
	if cfg.IsLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(ownMiddleware.RequestID)
	r.Use(ownMiddleware.Logger(log))
	analysisDelivery.NewAnalysisHandler(*cfg, log, analysisApp.UseCase).Router(r)

	httpServer := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		log.Infof("Server is running on port %s", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if withGrpc {
		lis, err := net.Listen("tcp", cfg.GrpcPort)
		if err != nil {
			return fmt.Errorf("cant listen port %s: %w", cfg.GrpcPort, err)
		}
		grpcServer = grpc.NewServer()
		analysisRPC.RegisterAnalysisServiceServer(grpcServer, usecase.NewAnalysisUseCase(analysisApp.UseCase, log))
		go func() {
			log.Infof("gRPC server is running on port %s", cfg.GrpcPort)
			if err := grpcServer.Serve(lis); err != nil {
				errs <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errs:
		log.Errorw("server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HardTimeCeiling+5*time.Second)
	defer shutdownCancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnw("http shutdown", "error", shutdownErr)
	}
	return err
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
}
