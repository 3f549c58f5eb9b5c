package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	deliveryAnalysis "babelfish/internal/delivery/analysis"
	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
	analysisUC "babelfish/internal/usecase/analysis"
	analysisRPC "babelfish/microservices/proto"
)

type AnalysisStore interface {
	Analyze(ctx context.Context, fen string, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error)
	WalkPV(ctx context.Context, fen string, depth, maxPlies int, timeBudget time.Duration, opts ...analysisUC.WalkOption) (analysis.PrincipalVariation, error)
	ClassifyMove(ctx context.Context, fen, move string, depth int, timeBudget time.Duration) (analysis.MoveQuality, error)
	AnalyzeVariations(ctx context.Context, fen string, variations [][]string, depth int, timeBudget time.Duration) (analysis.VariationReport, error)
}

// AnalysisUseCase serves AnalysisService over the use case the HTTP API
// uses. Request and response documents have the HTTP JSON shapes.
type AnalysisUseCase struct {
	store AnalysisStore
	log   *zap.SugaredLogger
	analysisRPC.UnimplementedAnalysisServiceServer
}

func NewAnalysisUseCase(store AnalysisStore, log *zap.SugaredLogger) *AnalysisUseCase {
	return &AnalysisUseCase{
		store: store,
		log:   log,
	}
}

func (a *AnalysisUseCase) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req deliveryAnalysis.AnalyzeRequest
	if err := analysisRPC.Decode(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	result, err := a.store.Analyze(ctx, req.FEN, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		return nil, a.statusError("Analyze", err)
	}
	return a.encode(result)
}

func (a *AnalysisUseCase) WalkPV(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req deliveryAnalysis.PVRequest
	if err := analysisRPC.Decode(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	pv, err := a.store.WalkPV(ctx, req.FEN, req.Depth, req.MaxPlies, millis(req.TimeBudgetMs))
	if err != nil {
		return nil, a.statusError("WalkPV", err)
	}
	return a.encode(pv)
}

func (a *AnalysisUseCase) ClassifyMove(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req deliveryAnalysis.ClassifyRequest
	if err := analysisRPC.Decode(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	quality, err := a.store.ClassifyMove(ctx, req.FEN, req.Move, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		return nil, a.statusError("ClassifyMove", err)
	}
	return a.encode(quality)
}

func (a *AnalysisUseCase) AnalyzeVariations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req deliveryAnalysis.VariationsRequest
	if err := analysisRPC.Decode(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	report, err := a.store.AnalyzeVariations(ctx, req.FEN, req.Variations, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		return nil, a.statusError("AnalyzeVariations", err)
	}
	return a.encode(report)
}

func (a *AnalysisUseCase) encode(v any) (*structpb.Struct, error) {
	out, err := analysisRPC.Encode(v)
	if err != nil {
		a.log.Errorw("failed to encode response", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// statusError maps use case errors onto gRPC codes. The application code
// travels as the message prefix so clients can restore it.
func (a *AnalysisUseCase) statusError(method string, err error) error {
	code := apperrors.Code(err)
	switch {
	case errors.Is(err, apperrors.ErrInvalidPosition),
		errors.Is(err, apperrors.ErrIllegalMove),
		errors.Is(err, apperrors.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, code+": "+err.Error())
	case errors.Is(err, apperrors.ErrEngineUnavailable), errors.Is(err, apperrors.ErrPoolClosed):
		return status.Error(codes.Unavailable, code+": "+err.Error())
	}
	a.log.Errorw("rpc failed", "method", method, "error", err)
	return status.Error(codes.Internal, code+": internal error")
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
