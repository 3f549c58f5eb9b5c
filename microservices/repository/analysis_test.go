package repository

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"babelfish/internal/bootstrap"
	"babelfish/internal/domain/analysis"
	"babelfish/internal/enginetest"
	apperrors "babelfish/internal/errors"
	chessRepo "babelfish/internal/repository"
	analysisUC "babelfish/internal/usecase/analysis"
	analysisRPC "babelfish/microservices/proto"
	"babelfish/microservices/usecase"
)

const (
	startFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	blackMateFEN = "r5k1/8/8/8/8/8/5PPP/6K1 b - - 0 1"
)

func newTestUseCase(t *testing.T, pool analysisUC.EnginePool) *analysisUC.AnalysisUseCase {
	cfg, err := analysisUC.NewConfig(&bootstrap.Config{
		MultiPV:          3,
		DefaultDepth:     10,
		MaxDepth:         30,
		HardTimeCeiling:  10 * time.Second,
		PvMaxPliesCap:    25,
		PvDecisiveCp:     2000,
		PvStopOnMate:     true,
		BelowTopKPolicy:  "unknown",
		ThresholdExcel:   10,
		ThresholdGood:    50,
		ThresholdInacc:   100,
		ThresholdMistake: 200,
	})
	require.NoError(t, err)
	return analysisUC.NewAnalysisUseCase(pool, chessRepo.NewRules(), nil, cfg, zaptest.NewLogger(t).Sugar())
}

// dial serves uc over an in-memory listener and returns a connected client.
func dial(t *testing.T, uc *analysisUC.AnalysisUseCase) *grpc.ClientConn {
	log := zaptest.NewLogger(t).Sugar()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	analysisRPC.RegisterAnalysisServiceServer(server, usecase.NewAnalysisUseCase(uc, log))
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRemoteAnalyze(t *testing.T) {
	engine := enginetest.NewEngine().On(startFEN,
		enginetest.CP(30, "e2e4", "e7e5"),
		enginetest.CP(12, "d2d4"),
	)
	conn := dial(t, newTestUseCase(t, &enginetest.Pool{Engine: engine}))
	repo := NewAnalysisRepository(conn, zaptest.NewLogger(t).Sugar())

	result, err := repo.Analyze(context.Background(), startFEN, 12, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, result.BestMove)
	assert.Equal(t, "e4", *result.BestMove)
	assert.Equal(t, analysis.Centipawn(30), result.Evaluation)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "d4", result.Candidates[1].Move)
	assert.Equal(t, analysis.White, result.Position.SideToMove)
	assert.Equal(t, 12, engine.LastBudget().Depth)
	assert.Equal(t, 2*time.Second, engine.LastBudget().MoveTime)
}

func TestRemoteWalkPV(t *testing.T) {
	engine := enginetest.NewEngine().On(blackMateFEN, enginetest.Mate(1, "a8a1"))
	conn := dial(t, newTestUseCase(t, &enginetest.Pool{Engine: engine}))
	repo := NewAnalysisRepository(conn, zaptest.NewLogger(t).Sugar())

	pv, err := repo.WalkPV(context.Background(), blackMateFEN, 10, 5, time.Second)
	require.NoError(t, err)
	require.Len(t, pv.Steps, 1)
	assert.Equal(t, "Ra1#", pv.Steps[0].Move)
	assert.Equal(t, analysis.Black, pv.Steps[0].Mover)
	assert.Equal(t, analysis.MateIn(-1), pv.Steps[0].Evaluation)
	assert.Equal(t, analysis.TerminalCheckmate, pv.Steps[0].Terminal)
}

func TestRemoteClassifyMove(t *testing.T) {
	engine := enginetest.NewEngine().On(startFEN,
		enginetest.CP(30, "e2e4"),
		enginetest.CP(20, "d2d4"),
		enginetest.CP(-70, "a2a3"),
	)
	conn := dial(t, newTestUseCase(t, &enginetest.Pool{Engine: engine}))
	repo := NewAnalysisRepository(conn, zaptest.NewLogger(t).Sugar())

	quality, err := repo.ClassifyMove(context.Background(), startFEN, "e2e4", 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, analysis.GradeExcellent, quality.Grade)
	assert.Zero(t, quality.Loss)

	quality, err = repo.ClassifyMove(context.Background(), startFEN, "a3", 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, analysis.GradeInaccuracy, quality.Grade)
	assert.Equal(t, 100, quality.Loss)

	quality, err = repo.ClassifyMove(context.Background(), startFEN, "h4", 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, analysis.GradeUnknown, quality.Grade)
}

func TestRemoteAnalyzeVariations(t *testing.T) {
	engine := enginetest.NewEngine().On(blackMateFEN, enginetest.Mate(1, "a8a1"))
	conn := dial(t, newTestUseCase(t, &enginetest.Pool{Engine: engine}))
	repo := NewAnalysisRepository(conn, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	report, err := repo.AnalyzeVariations(ctx, blackMateFEN, [][]string{{"Kf8", "Kf1"}}, 8, time.Second)
	require.NoError(t, err)
	assert.Equal(t, analysis.MateIn(-1), report.Start.Evaluation)
	require.Len(t, report.Variations, 1)
	v := report.Variations[0]
	require.Len(t, v.Steps, 2)
	assert.Equal(t, "Kf8", v.Steps[0].Move)
	assert.Equal(t, analysis.Black, v.Steps[0].Mover)
	assert.Equal(t, analysis.Centipawn(10), v.Steps[0].Evaluation)
	assert.Equal(t, -20, v.Steps[1].Change)
	assert.Equal(t, analysis.Centipawn(-10), v.Final)
	assert.Equal(t, 8, engine.LastBudget().Depth)

	_, err = repo.AnalyzeVariations(ctx, blackMateFEN, [][]string{{"Kf8"}}, 8, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = repo.AnalyzeVariations(ctx, blackMateFEN, [][]string{{"Kf8", "Ke2"}}, 8, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalMove))
}

func TestRemoteErrors(t *testing.T) {
	engine := enginetest.NewEngine()
	conn := dial(t, newTestUseCase(t, &enginetest.Pool{Engine: engine}))
	repo := NewAnalysisRepository(conn, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	_, err := repo.Analyze(ctx, "not a fen", 10, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPosition))

	_, err = repo.ClassifyMove(ctx, startFEN, "Qh5", 10, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalMove))

	_, err = analysisRPC.NewAnalysisServiceClient(conn).Analyze(ctx, mustEncode(t, map[string]any{"fen": "not a fen"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	down := dial(t, newTestUseCase(t, &enginetest.Pool{Err: apperrors.NewEngineError("start", errors.New("missing binary"))}))
	_, err = NewAnalysisRepository(down, zaptest.NewLogger(t).Sugar()).Analyze(ctx, startFEN, 10, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))
	_, err = analysisRPC.NewAnalysisServiceClient(down).Analyze(ctx, mustEncode(t, map[string]any{"fen": startFEN}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestFromStatus(t *testing.T) {
	err := fromStatus(status.Error(codes.InvalidArgument, "bad depth"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	err = fromStatus(status.Error(codes.Unavailable, "connection refused"))
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))

	err = fromStatus(status.Error(codes.Internal, "internal: internal error"))
	assert.Equal(t, "internal", apperrors.Code(err))

	err = fromStatus(errors.New("plain"))
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))
}

func mustEncode(t *testing.T, v any) *structpb.Struct {
	s, err := analysisRPC.Encode(v)
	require.NoError(t, err)
	return s
}
