package engine

import (
	"fmt"
	"strings"
)

type Seat string

const (
	P1 Seat = "P1"
	P2 Seat = "P2"
)

func (s Seat) Other() Seat {
	if s == P1 {
		return P2
	}
	return P1
}

// Move is a player's per-round choice. Agents never see Cooperate/Defect,
// only the configured labels for option J and option F.
type Move int8

const (
	Cooperate Move = iota // option J
	Defect                // option F
)

func (m Move) Opposite() Move {
	if m == Defect {
		return Cooperate
	}
	return Defect
}

// Code is the canonical single-letter form used in storage ("J" / "F").
func (m Move) Code() string {
	if m == Defect {
		return "F"
	}
	return "J"
}

func (m Move) String() string {
	if m == Defect {
		return "defect"
	}
	return "cooperate"
}

// Label returns the display label shown to agents for this move.
func (m Move) Label(optionJ, optionF string) string {
	if m == Defect {
		return optionF
	}
	return optionJ
}

func ParseMove(s string) (Move, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "J", "C", "COOPERATE":
		return Cooperate, nil
	case "F", "D", "DEFECT":
		return Defect, nil
	}
	return Cooperate, fmt.Errorf("unknown move %q", s)
}

func (m Move) MarshalText() ([]byte, error) { return []byte(m.Code()), nil }

func (m *Move) UnmarshalText(b []byte) error {
	v, err := ParseMove(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Payoff is one matrix cell: points for player 1 and player 2.
type Payoff struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// PayoffMatrix is indexed [player-1 move][player-2 move], i.e.
// [[(J,J), (J,F)], [(F,J), (F,F)]] from player 1's side.
type PayoffMatrix [2][2]Payoff

func (pm PayoffMatrix) Cell(m1, m2 Move) Payoff { return pm[m1][m2] }

// Score returns (own, opponent) points for the row player. The matrix must
// already be oriented for the scoring seat; see ForSeat.
func (pm PayoffMatrix) Score(own, opp Move) (int, int) {
	c := pm[own][opp]
	return c.P1, c.P2
}

// ForSeat re-orients the matrix so that the row player is seat s.
func (pm PayoffMatrix) ForSeat(s Seat) PayoffMatrix {
	if s == P1 {
		return pm
	}
	var out PayoffMatrix
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			c := pm[j][i]
			out[i][j] = Payoff{P1: c.P2, P2: c.P1}
		}
	}
	return out
}

// MaxJoint is the best combined payoff any single cell offers.
func (pm PayoffMatrix) MaxJoint() int {
	best := pm[0][0].P1 + pm[0][0].P2
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if s := pm[i][j].P1 + pm[i][j].P2; s > best {
				best = s
			}
		}
	}
	return best
}

// Rows is the nested-list form used by YAML/JSON configs.
func (pm PayoffMatrix) Rows() [][][]int {
	out := make([][][]int, 2)
	for i := 0; i < 2; i++ {
		out[i] = make([][]int, 2)
		for j := 0; j < 2; j++ {
			out[i][j] = []int{pm[i][j].P1, pm[i][j].P2}
		}
	}
	return out
}

// ParsePayoffMatrix converts [[(JJ),(JF)],[(FJ),(FF)]] nested lists into a
// matrix. All four cells must be present and each must hold exactly two scores.
func ParsePayoffMatrix(rows [][][]int) (PayoffMatrix, error) {
	var pm PayoffMatrix
	if len(rows) != 2 {
		return pm, fmt.Errorf("%w: payoff matrix needs 2 rows, got %d", ErrInvalidConfig, len(rows))
	}
	for i, row := range rows {
		if len(row) != 2 {
			return pm, fmt.Errorf("%w: payoff row %d needs 2 cells, got %d", ErrInvalidConfig, i, len(row))
		}
		for j, cell := range row {
			if len(cell) != 2 {
				return pm, fmt.Errorf("%w: payoff cell [%d][%d] needs 2 scores, got %d", ErrInvalidConfig, i, j, len(cell))
			}
			pm[i][j] = Payoff{P1: cell[0], P2: cell[1]}
		}
	}
	return pm, nil
}

// Round is one completed exchange of moves.
type Round struct {
	P1 Move `json:"p1"`
	P2 Move `json:"p2"`
}

// For returns (own, opponent) moves from seat s's side.
func (r Round) For(s Seat) (Move, Move) {
	if s == P1 {
		return r.P1, r.P2
	}
	return r.P2, r.P1
}

// History is append-only and in chronological order.
type History []Round
