package analysis

import "strings"

// Position is a validated FEN. Values are only produced by the rules
// oracle and are never modified; moves yield new positions.
type Position struct {
	FEN        string `json:"fen"`
	SideToMove Color  `json:"side_to_move"`
}

// RepetitionKey identifies the position for repetition counting: placement,
// side to move, castling rights and en passant square.
func (p Position) RepetitionKey() string {
	fields := strings.Fields(p.FEN)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

type Terminal string

const (
	TerminalNone                 Terminal = ""
	TerminalCheckmate            Terminal = "checkmate"
	TerminalStalemate            Terminal = "stalemate"
	TerminalInsufficientMaterial Terminal = "insufficient_material"
	TerminalRepetition           Terminal = "threefold_repetition"
)

func (t Terminal) IsTerminal() bool { return t != TerminalNone }

// PositionInfo is a readable breakdown of a position.
type PositionInfo struct {
	Position
	Castling       string   `json:"castling"`
	EnPassant      string   `json:"en_passant,omitempty"`
	HalfmoveClock  int      `json:"halfmove_clock"`
	FullmoveNumber int      `json:"fullmove_number"`
	InCheck        bool     `json:"in_check"`
	Terminal       Terminal `json:"terminal,omitempty"`
	LegalMoveCount int      `json:"legal_move_count"`
}

// LegalMoves groups the legal moves of a position in SAN.
type LegalMoves struct {
	Position   Position `json:"position"`
	All        []string `json:"all"`
	Captures   []string `json:"captures"`
	Checks     []string `json:"checks"`
	Castling   []string `json:"castling"`
	Promotions []string `json:"promotions"`
}

// AppliedMove is one move of an applied sequence.
type AppliedMove struct {
	Move     string   `json:"move"`
	UCI      string   `json:"uci"`
	Mover    Color    `json:"mover"`
	Before   string   `json:"fen_before"`
	After    Position `json:"position"`
	Terminal Terminal `json:"terminal,omitempty"`
}
