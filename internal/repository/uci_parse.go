package repository

import (
	"sort"
	"strconv"
	"strings"

	"babelfish/internal/domain/analysis"
)

// infoLine is one "info ... score ... pv ..." line of a search.
type infoLine struct {
	depth      int
	multiPV    int
	score      analysis.RawScore
	hasScore   bool
	lowerBound bool
	upperBound bool
	pv         []string
}

// parseInfo reads an engine "info" line. Lines without a score and a pv,
// and "info string" lines, are reported as not ok.
func parseInfo(line string) (infoLine, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "info" || parts[1] == "string" {
		return infoLine{}, false
	}

	info := infoLine{multiPV: 1}
scoreLoop:
	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			info.depth = atoiAt(parts, i+1)
			i++
		case "multipv":
			info.multiPV = atoiAt(parts, i+1)
			i++
		case "score":
			if i+2 >= len(parts) {
				return infoLine{}, false
			}
			switch parts[i+1] {
			case "cp":
				info.score = analysis.RawScore{Centipawns: atoiAt(parts, i+2)}
			case "mate":
				info.score = analysis.RawScore{Mate: atoiAt(parts, i+2), IsMate: true}
			default:
				return infoLine{}, false
			}
			info.hasScore = true
			i += 2
		case "lowerbound":
			info.lowerBound = true
		case "upperbound":
			info.upperBound = true
		case "pv":
			info.pv = append([]string(nil), parts[i+1:]...)
			break scoreLoop
		case "string":
			break scoreLoop
		case "currmove", "currmovenumber", "seldepth", "nodes", "nps", "tbhits", "time", "hashfull", "cpuload":
			i++
		}
	}

	if !info.hasScore || len(info.pv) == 0 {
		return infoLine{}, false
	}
	return info, true
}

// parseBestMove returns the move of a "bestmove" line; "(none)" and
// "0000" mean there is no move.
func parseBestMove(line string) (string, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "bestmove" {
		return "", false
	}
	if len(parts) < 2 || parts[1] == "(none)" || parts[1] == "0000" {
		return "", true
	}
	return parts[1], true
}

func atoiAt(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(parts[i])
	return n
}

// searchCollector keeps the deepest exact line per multipv slot until the
// engine reports its best move.
type searchCollector struct {
	multiPV  int
	lines    map[int]infoLine
	bestMove string
	done     bool
}

func newSearchCollector(multiPV int) *searchCollector {
	return &searchCollector{multiPV: max(1, multiPV), lines: map[int]infoLine{}}
}

// feed consumes one engine line and reports whether the search finished.
func (c *searchCollector) feed(line string) bool {
	if move, ok := parseBestMove(line); ok {
		c.bestMove = move
		c.done = true
		return true
	}
	info, ok := parseInfo(line)
	if !ok || info.multiPV < 1 || info.multiPV > c.multiPV {
		return false
	}
	prev, seen := c.lines[info.multiPV]
	bound := info.lowerBound || info.upperBound
	switch {
	case !seen:
	case bound && !(prev.lowerBound || prev.upperBound):
		return false
	case info.depth < prev.depth:
		return false
	}
	c.lines[info.multiPV] = info
	return false
}

func (c *searchCollector) result() analysis.RawResult {
	ranks := make([]int, 0, len(c.lines))
	for rank := range c.lines {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	result := analysis.RawResult{BestMove: c.bestMove, Lines: make([]analysis.RawLine, 0, len(ranks))}
	for _, rank := range ranks {
		info := c.lines[rank]
		result.Lines = append(result.Lines, analysis.RawLine{
			Rank:  rank,
			Depth: info.depth,
			Score: info.score,
			PV:    info.pv,
		})
	}
	return result
}
