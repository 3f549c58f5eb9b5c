package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"babelfish/internal/app"
	"babelfish/internal/domain/analysis"
	analysisUC "babelfish/internal/usecase/analysis"
	"babelfish/microservices/repository"
)

// analyst is what the one-shot commands need, served by a local engine or
// by a remote AnalysisService.
type analyst interface {
	Analyze(ctx context.Context, fen string, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error)
	WalkPV(ctx context.Context, fen string, depth, maxPlies int, timeBudget time.Duration) (analysis.PrincipalVariation, error)
	ClassifyMove(ctx context.Context, fen, move string, depth int, timeBudget time.Duration) (analysis.MoveQuality, error)
	AnalyzeVariations(ctx context.Context, fen string, variations [][]string, depth int, timeBudget time.Duration) (analysis.VariationReport, error)
}

type localAnalyst struct {
	uc *analysisUC.AnalysisUseCase
}

func (l localAnalyst) Analyze(ctx context.Context, fen string, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error) {
	return l.uc.Analyze(ctx, fen, depth, timeBudget)
}

func (l localAnalyst) WalkPV(ctx context.Context, fen string, depth, maxPlies int, timeBudget time.Duration) (analysis.PrincipalVariation, error) {
	return l.uc.WalkPV(ctx, fen, depth, maxPlies, timeBudget)
}

func (l localAnalyst) ClassifyMove(ctx context.Context, fen, move string, depth int, timeBudget time.Duration) (analysis.MoveQuality, error) {
	return l.uc.ClassifyMove(ctx, fen, move, depth, timeBudget)
}

func (l localAnalyst) AnalyzeVariations(ctx context.Context, fen string, variations [][]string, depth int, timeBudget time.Duration) (analysis.VariationReport, error) {
	return l.uc.AnalyzeVariations(ctx, fen, variations, depth, timeBudget)
}

type searchFlags struct {
	depth int
	time  time.Duration
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.depth, "depth", "d", 0, "search depth (0 uses DEFAULT_DEPTH)")
	cmd.Flags().DurationVarP(&f.time, "time", "t", 0, "time budget per search (0 uses HARD_TIME_CEILING)")
}

// withAnalyst runs fn against the remote service when --remote is set and
// against a local engine pool otherwise.
func withAnalyst(ctx context.Context, opts *rootOptions, fn func(analyst) (any, error)) (any, error) {
	if opts.remote != "" {
		conn, err := grpc.NewClient(opts.remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", opts.remote, err)
		}
		defer conn.Close()
		return fn(repository.NewAnalysisRepository(conn, opts.log))
	}

	analysisApp, err := app.New(ctx, opts.cfg, opts.log)
	if err != nil {
		return nil, err
	}
	defer analysisApp.Close(context.Background())
	return fn(localAnalyst{uc: analysisApp.UseCase})
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "analyze FEN",
		Short: "Rank the best moves of a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := withAnalyst(cmd.Context(), opts, func(a analyst) (any, error) {
				return a.Analyze(cmd.Context(), args[0], flags.depth, flags.time)
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, v)
		},
	}
	flags.register(cmd)
	return cmd
}

func newPVCmd(opts *rootOptions) *cobra.Command {
	var (
		flags    searchFlags
		maxPlies int
	)
	cmd := &cobra.Command{
		Use:   "pv FEN",
		Short: "Follow the principal variation of a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := withAnalyst(cmd.Context(), opts, func(a analyst) (any, error) {
				return a.WalkPV(cmd.Context(), args[0], flags.depth, maxPlies, flags.time)
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, v)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&maxPlies, "plies", "n", 10, "maximum number of plies")
	return cmd
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "classify FEN MOVE",
		Short: "Grade a move played in a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := withAnalyst(cmd.Context(), opts, func(a analyst) (any, error) {
				return a.ClassifyMove(cmd.Context(), args[0], args[1], flags.depth, flags.time)
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, v)
		},
	}
	flags.register(cmd)
	return cmd
}

// splitLines turns each quoted argument ("e4 e5 Nf3") into one variation.
func splitLines(args []string) [][]string {
	variations := make([][]string, 0, len(args))
	for _, arg := range args {
		variations = append(variations, strings.Fields(arg))
	}
	return variations
}

func newVariationsCmd(opts *rootOptions) *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:     "variations FEN LINE...",
		Short:   "Compare candidate lines, each given as one quoted argument of moves",
		Example: `  babelfish variations "$FEN" "e4 e5 Nf3" "d4 d5 c4"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := withAnalyst(cmd.Context(), opts, func(a analyst) (any, error) {
				return a.AnalyzeVariations(cmd.Context(), args[0], splitLines(args[1:]), flags.depth, flags.time)
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, v)
		},
	}
	flags.register(cmd)
	return cmd
}

func newLegalCmd(opts *rootOptions) *cobra.Command {
	var info bool
	cmd := &cobra.Command{
		Use:   "legal FEN",
		Short: "List the legal moves of a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysisApp, err := app.New(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer analysisApp.Close(context.Background())

			var v any
			if info {
				v, err = analysisApp.UseCase.PositionInfo(args[0])
			} else {
				v, err = analysisApp.UseCase.LegalMoves(args[0])
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, v)
		},
	}
	cmd.Flags().BoolVar(&info, "info", false, "describe the position instead")
	return cmd
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// through JSON so yaml keys follow the json tags
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	}
	return fmt.Errorf("unknown output format %q", format)
}
