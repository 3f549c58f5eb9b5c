package analysis

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"babelfish/internal/bootstrap"
	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
	"babelfish/internal/httpresponse"
	analysisUC "babelfish/internal/usecase/analysis"
	"babelfish/internal/utils"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type AnalyzeRequest struct {
	FEN          string `json:"fen"`
	Depth        int    `json:"depth"`
	TimeBudgetMs int64  `json:"time_budget_ms"`
}

type PVRequest struct {
	FEN          string `json:"fen"`
	Depth        int    `json:"depth"`
	MaxPlies     int    `json:"max_plies"`
	TimeBudgetMs int64  `json:"time_budget_ms"`
}

type ClassifyRequest struct {
	FEN          string `json:"fen"`
	Move         string `json:"move"`
	Depth        int    `json:"depth"`
	TimeBudgetMs int64  `json:"time_budget_ms"`
}

type PositionRequest struct {
	FEN string `json:"fen"`
}

type MovesRequest struct {
	FEN          string   `json:"fen"`
	Moves        []string `json:"moves"`
	Depth        int      `json:"depth"`
	TimeBudgetMs int64    `json:"time_budget_ms"`
}

type VariationsRequest struct {
	FEN          string     `json:"fen"`
	Variations   [][]string `json:"variations"`
	Depth        int        `json:"depth"`
	TimeBudgetMs int64      `json:"time_budget_ms"`
}

type GameReviewResponse struct {
	analysis.GameReview
	Summary map[analysis.Color]map[analysis.Grade]int `json:"summary"`
}

// StreamMessage is one websocket frame of /pv/stream: a step per ply, then
// the finished variation or an error.
type StreamMessage struct {
	Type      string                       `json:"type"`
	Step      *analysis.PVStep             `json:"step,omitempty"`
	Variation *analysis.PrincipalVariation `json:"variation,omitempty"`
	Error     *httpresponse.ErrorResponse  `json:"error,omitempty"`
}

type AnalysisHandler struct {
	cfg bootstrap.Config
	log *zap.SugaredLogger
	uc  *analysisUC.AnalysisUseCase
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewAnalysisHandler(cfg bootstrap.Config, log *zap.SugaredLogger, uc *analysisUC.AnalysisUseCase) *AnalysisHandler {
	return &AnalysisHandler{
		cfg: cfg,
		log: log,
		uc:  uc,
	}
}

func (h *AnalysisHandler) Router(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Post("/analyze", h.Analyze)
	r.Post("/pv", h.WalkPV)
	r.Get("/pv/stream", h.StreamPV)
	r.Post("/classify", h.ClassifyMove)
	r.Post("/legal-moves", h.LegalMoves)
	r.Post("/apply-moves", h.ApplyMoves)
	r.Post("/explore", h.ExploreMoves)
	r.Post("/variations", h.AnalyzeVariations)
	r.Post("/game", h.AnalyzeGame)
	r.Post("/position", h.PositionInfo)
}

func (h *AnalysisHandler) Health(w http.ResponseWriter, r *http.Request) {
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.uc.Analyze(r.Context(), req.FEN, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, result)
}

func (h *AnalysisHandler) WalkPV(w http.ResponseWriter, r *http.Request) {
	var req PVRequest
	if !h.decode(w, r, &req) {
		return
	}
	pv, err := h.uc.WalkPV(r.Context(), req.FEN, req.Depth, req.MaxPlies, millis(req.TimeBudgetMs))
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, pv)
}

func (h *AnalysisHandler) ClassifyMove(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	quality, err := h.uc.ClassifyMove(r.Context(), req.FEN, req.Move, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, quality)
}

func (h *AnalysisHandler) LegalMoves(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	moves, err := h.uc.LegalMoves(req.FEN)
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, moves)
}

func (h *AnalysisHandler) PositionInfo(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, err := h.uc.PositionInfo(req.FEN)
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, info)
}

func (h *AnalysisHandler) ApplyMoves(w http.ResponseWriter, r *http.Request) {
	var req MovesRequest
	if !h.decode(w, r, &req) {
		return
	}
	applied, err := h.uc.ApplyMoves(req.FEN, req.Moves)
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, applied)
}

func (h *AnalysisHandler) ExploreMoves(w http.ResponseWriter, r *http.Request) {
	var req MovesRequest
	if !h.decode(w, r, &req) {
		return
	}
	explored, err := h.uc.ExploreMoves(r.Context(), req.FEN, req.Moves, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, explored)
}

func (h *AnalysisHandler) AnalyzeVariations(w http.ResponseWriter, r *http.Request) {
	var req VariationsRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.uc.AnalyzeVariations(r.Context(), req.FEN, req.Variations, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, report)
}

// AnalyzeGame reviews a game; an empty fen means the standard start.
func (h *AnalysisHandler) AnalyzeGame(w http.ResponseWriter, r *http.Request) {
	var req MovesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FEN == "" {
		req.FEN = startFEN
	}
	review, err := h.uc.AnalyzeGame(r.Context(), req.FEN, req.Moves, req.Depth, millis(req.TimeBudgetMs))
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, GameReviewResponse{GameReview: review, Summary: review.Summary()})
}

// StreamPV walks the principal variation given in the query string and
// sends every step as it is found. Closing the socket cancels the walk.
func (h *AnalysisHandler) StreamPV(w http.ResponseWriter, r *http.Request) {
	req, err := pvRequestFromQuery(r)
	if err != nil {
		httpresponse.WriteError(w, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(msg StreamMessage) {
		if err := conn.WriteJSON(msg); err != nil {
			h.log.Debugw("websocket write failed", "error", err)
			cancel()
		}
	}

	pv, err := h.uc.WalkPV(ctx, req.FEN, req.Depth, req.MaxPlies, millis(req.TimeBudgetMs),
		analysisUC.WithStepObserver(func(step analysis.PVStep) {
			send(StreamMessage{Type: "step", Step: &step})
		}))
	if err != nil {
		send(StreamMessage{Type: "error", Error: &httpresponse.ErrorResponse{ErrorDescription: err.Error(), Code: apperrors.Code(err)}})
	} else {
		send(StreamMessage{Type: "variation", Variation: &pv})
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func pvRequestFromQuery(r *http.Request) (PVRequest, error) {
	q := r.URL.Query()
	req := PVRequest{FEN: strings.TrimSpace(q.Get("fen"))}
	for name, dst := range map[string]*int{"depth": &req.Depth, "max_plies": &req.MaxPlies} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return PVRequest{}, apperrors.InvalidArgument("%s must be an integer", name)
			}
			*dst = n
		}
	}
	if v := q.Get("time_budget_ms"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return PVRequest{}, apperrors.InvalidArgument("time_budget_ms must be an integer")
		}
		req.TimeBudgetMs = n
	}
	return req, nil
}

func (h *AnalysisHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := utils.DecodeJSONRequest(r, dst); err != nil {
		h.log.Debugw("bad request body", "error", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, httpresponse.ErrorResponse{
			ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc + ": " + err.Error(),
			Code:             "invalid_argument",
		})
		return false
	}
	return true
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
