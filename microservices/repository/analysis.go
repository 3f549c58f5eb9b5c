package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	deliveryAnalysis "babelfish/internal/delivery/analysis"
	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
	analysisRPC "babelfish/microservices/proto"
)

// AnalysisRepository runs analyses on a remote AnalysisService.
type AnalysisRepository struct {
	client analysisRPC.AnalysisServiceClient
	log    *zap.SugaredLogger
}

func NewAnalysisRepository(conn grpc.ClientConnInterface, log *zap.SugaredLogger) *AnalysisRepository {
	return &AnalysisRepository{
		client: analysisRPC.NewAnalysisServiceClient(conn),
		log:    log,
	}
}

func (r *AnalysisRepository) Analyze(ctx context.Context, fen string, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error) {
	var result analysis.AnalysisResult
	err := r.call(ctx, r.client.Analyze, deliveryAnalysis.AnalyzeRequest{
		FEN:          fen,
		Depth:        depth,
		TimeBudgetMs: timeBudget.Milliseconds(),
	}, &result)
	return result, err
}

func (r *AnalysisRepository) WalkPV(ctx context.Context, fen string, depth, maxPlies int, timeBudget time.Duration) (analysis.PrincipalVariation, error) {
	var pv analysis.PrincipalVariation
	err := r.call(ctx, r.client.WalkPV, deliveryAnalysis.PVRequest{
		FEN:          fen,
		Depth:        depth,
		MaxPlies:     maxPlies,
		TimeBudgetMs: timeBudget.Milliseconds(),
	}, &pv)
	return pv, err
}

func (r *AnalysisRepository) ClassifyMove(ctx context.Context, fen, move string, depth int, timeBudget time.Duration) (analysis.MoveQuality, error) {
	var quality analysis.MoveQuality
	err := r.call(ctx, r.client.ClassifyMove, deliveryAnalysis.ClassifyRequest{
		FEN:          fen,
		Move:         move,
		Depth:        depth,
		TimeBudgetMs: timeBudget.Milliseconds(),
	}, &quality)
	return quality, err
}

func (r *AnalysisRepository) AnalyzeVariations(ctx context.Context, fen string, variations [][]string, depth int, timeBudget time.Duration) (analysis.VariationReport, error) {
	var report analysis.VariationReport
	err := r.call(ctx, r.client.AnalyzeVariations, deliveryAnalysis.VariationsRequest{
		FEN:          fen,
		Variations:   variations,
		Depth:        depth,
		TimeBudgetMs: timeBudget.Milliseconds(),
	}, &report)
	return report, err
}

type rpcMethod func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (r *AnalysisRepository) call(ctx context.Context, method rpcMethod, req, dst any) error {
	in, err := analysisRPC.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	out, err := method(ctx, in)
	if err != nil {
		return fromStatus(err)
	}
	if err := analysisRPC.Decode(out, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// fromStatus restores the application error a server reported. The code
// prefix of the message wins over the gRPC code.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return apperrors.NewEngineError("rpc", err)
	}
	msg := st.Message()
	prefix, _, _ := strings.Cut(msg, ": ")
	switch prefix {
	case "invalid_position":
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidPosition, msg)
	case "illegal_move":
		return fmt.Errorf("%w: %s", apperrors.ErrIllegalMove, msg)
	case "invalid_argument":
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidArgument, msg)
	case "engine_unavailable":
		return apperrors.NewEngineError("rpc", errors.New(msg))
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidArgument, msg)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return apperrors.NewEngineError("rpc", errors.New(msg))
	}
	return errors.New(msg)
}
