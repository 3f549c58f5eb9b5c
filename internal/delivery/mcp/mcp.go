// Package mcp exposes the analysis operations as Model Context Protocol
// tools served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	apperrors "babelfish/internal/errors"
	analysisUC "babelfish/internal/usecase/analysis"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type ToolServer struct {
	log    *zap.SugaredLogger
	uc     *analysisUC.AnalysisUseCase
	server *server.MCPServer
}

func NewToolServer(log *zap.SugaredLogger, uc *analysisUC.AnalysisUseCase, version string) *ToolServer {
	s := &ToolServer{
		log: log,
		uc:  uc,
		server: server.NewMCPServer("babelfish", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.register()
	return s
}

func (s *ToolServer) MCPServer() *server.MCPServer { return s.server }

// ServeStdio blocks until stdin is closed.
func (s *ToolServer) ServeStdio() error {
	return server.ServeStdio(s.server, server.WithErrorLogger(zap.NewStdLog(s.log.Desugar())))
}

func fenArg() mcp.ToolOption {
	return mcp.WithString("fen", mcp.Required(), mcp.Description("Position in FEN"))
}

func depthArg() mcp.ToolOption {
	return mcp.WithNumber("depth", mcp.Description("Search depth in plies; 0 or absent uses the server default"))
}

func timeArg() mcp.ToolOption {
	return mcp.WithNumber("time_budget_ms", mcp.Description("Per-search time limit in milliseconds, capped by the server"))
}

func movesArg(desc string) mcp.ToolOption {
	return mcp.WithArray("moves", mcp.Required(), mcp.Description(desc), mcp.Items(map[string]any{"type": "string"}))
}

func (s *ToolServer) register() {
	s.server.AddTool(mcp.NewTool("analyze_position",
		mcp.WithDescription("Evaluate a position and rank the engine's top candidate moves. Scores are from White's point of view."),
		fenArg(), depthArg(), timeArg(),
	), s.analyzePosition)

	s.server.AddTool(mcp.NewTool("get_principal_variation",
		mcp.WithDescription("Follow the engine's best line from a position, one analysed move per ply."),
		fenArg(), depthArg(), timeArg(),
		mcp.WithNumber("max_plies", mcp.Description("Longest line to return"), mcp.DefaultNumber(10)),
	), s.principalVariation)

	s.server.AddTool(mcp.NewTool("evaluate_move_quality",
		mcp.WithDescription("Grade a move (SAN or UCI) against the engine's best move: excellent, good, inaccuracy, mistake, blunder or unknown."),
		fenArg(),
		mcp.WithString("move", mcp.Required(), mcp.Description("Move in SAN (Nf3) or UCI (g1f3)")),
		depthArg(), timeArg(),
	), s.moveQuality)

	s.server.AddTool(mcp.NewTool("list_legal_moves",
		mcp.WithDescription("List the legal moves of a position grouped into captures, checks, castling and promotions."),
		fenArg(),
	), s.legalMoves)

	s.server.AddTool(mcp.NewTool("apply_moves",
		mcp.WithDescription("Play up to 20 moves from a position and return the position after each one."),
		fenArg(), movesArg("Moves in SAN or UCI, in order"),
	), s.applyMoves)

	s.server.AddTool(mcp.NewTool("explore_moves",
		mcp.WithDescription("Analyse the position after each of up to 8 candidate moves."),
		fenArg(), movesArg("Candidate moves in SAN or UCI"), depthArg(), timeArg(),
	), s.exploreMoves)

	s.server.AddTool(mcp.NewTool("analyze_variations",
		mcp.WithDescription("Play up to 5 candidate lines of 2 to 4 moves each and report how the evaluation changes after every move. Longer lines are cut to 4 moves."),
		fenArg(),
		mcp.WithArray("variations", mcp.Required(),
			mcp.Description("Lines to play, each a list of moves in SAN or UCI"),
			mcp.Items(map[string]any{"type": "array", "items": map[string]any{"type": "string"}}),
		),
		depthArg(), timeArg(),
	), s.analyzeVariations)

	s.server.AddTool(mcp.NewTool("analyze_game",
		mcp.WithDescription("Grade every move of a game."),
		mcp.WithString("fen", mcp.Description("Start position; the standard start when absent")),
		movesArg("The game's moves in SAN or UCI"), depthArg(), timeArg(),
	), s.analyzeGame)

	s.server.AddTool(mcp.NewTool("position_info",
		mcp.WithDescription("Describe a position: side to move, castling rights, en passant square, clocks, check and game-over state."),
		fenArg(),
	), s.positionInfo)
}

func budget(req mcp.CallToolRequest) (int, time.Duration) {
	return req.GetInt("depth", 0), time.Duration(req.GetFloat("time_budget_ms", 0)) * time.Millisecond
}

// result renders v as JSON text, or err as a tool error the caller can read.
func (s *ToolServer) result(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		code := apperrors.Code(err)
		if code == "internal" {
			s.log.Errorw("tool failed", "tool", tool, "error", err)
		} else {
			s.log.Debugw("tool rejected", "tool", tool, "error", err)
		}
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", code, err)), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *ToolServer) analyzePosition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth, timeBudget := budget(req)
	result, err := s.uc.Analyze(ctx, fen, depth, timeBudget)
	return s.result("analyze_position", result, err)
}

func (s *ToolServer) principalVariation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth, timeBudget := budget(req)
	pv, err := s.uc.WalkPV(ctx, fen, depth, req.GetInt("max_plies", 10), timeBudget)
	return s.result("get_principal_variation", pv, err)
}

func (s *ToolServer) moveQuality(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	move, err := req.RequireString("move")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth, timeBudget := budget(req)
	quality, err := s.uc.ClassifyMove(ctx, fen, move, depth, timeBudget)
	return s.result("evaluate_move_quality", quality, err)
}

func (s *ToolServer) legalMoves(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	moves, err := s.uc.LegalMoves(fen)
	return s.result("list_legal_moves", moves, err)
}

func (s *ToolServer) applyMoves(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	applied, err := s.uc.ApplyMoves(fen, req.GetStringSlice("moves", nil))
	return s.result("apply_moves", applied, err)
}

func (s *ToolServer) exploreMoves(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth, timeBudget := budget(req)
	explored, err := s.uc.ExploreMoves(ctx, fen, req.GetStringSlice("moves", nil), depth, timeBudget)
	return s.result("explore_moves", explored, err)
}

func (s *ToolServer) analyzeVariations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	variations, err := variationsArg(req.GetArguments()["variations"])
	if err != nil {
		return s.result("analyze_variations", nil, err)
	}
	depth, timeBudget := budget(req)
	report, err := s.uc.AnalyzeVariations(ctx, fen, variations, depth, timeBudget)
	return s.result("analyze_variations", report, err)
}

// variationsArg accepts a JSON array of arrays of move strings.
func variationsArg(raw any) ([][]string, error) {
	lines, ok := raw.([]any)
	if !ok {
		return nil, apperrors.InvalidArgument("variations must be an array of move lists")
	}
	variations := make([][]string, 0, len(lines))
	for i, line := range lines {
		items, ok := line.([]any)
		if !ok {
			return nil, apperrors.InvalidArgument("variation %d is not a list of moves", i+1)
		}
		moves := make([]string, 0, len(items))
		for _, item := range items {
			move, ok := item.(string)
			if !ok {
				return nil, apperrors.InvalidArgument("variation %d holds a non-string move", i+1)
			}
			moves = append(moves, move)
		}
		variations = append(variations, moves)
	}
	return variations, nil
}

func (s *ToolServer) analyzeGame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen := req.GetString("fen", startFEN)
	depth, timeBudget := budget(req)
	review, err := s.uc.AnalyzeGame(ctx, fen, req.GetStringSlice("moves", nil), depth, timeBudget)
	if err != nil {
		return s.result("analyze_game", nil, err)
	}
	return s.result("analyze_game", map[string]any{"review": review, "summary": review.Summary()}, nil)
}

func (s *ToolServer) positionInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fen, err := req.RequireString("fen")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.uc.PositionInfo(fen)
	return s.result("position_info", info, err)
}
