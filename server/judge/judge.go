// Package judge grades the moves of a finished game after the fact.
package judge

import "coop-arena/server/engine"

type Strategy string

const (
	AlwaysCooperate Strategy = "always_cooperate"
	AlwaysDefect    Strategy = "always_defect"
	TitForTat       Strategy = "tit_for_tat"
	GrimTrigger     Strategy = "grim_trigger"
	Mixed           Strategy = "mixed"
	Unknown         Strategy = "unknown" // no rounds played
)

// SeatReport grades one seat. A move is a best response when, against the
// opponent's actual move that round, no other move would have paid more.
// Regret sums the points left on the table.
type SeatReport struct {
	Strategy      Strategy `json:"strategy"`
	Rounds        int      `json:"rounds"`
	Cooperations  int      `json:"cooperations"`
	BestResponses int      `json:"best_responses"`
	Regret        int      `json:"regret"`
}

func (s SeatReport) Accuracy() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return float64(s.BestResponses) / float64(s.Rounds)
}

type Report struct {
	P1 SeatReport `json:"p1"`
	P2 SeatReport `json:"p2"`
}

// Evaluate grades intended moves (what each agent chose) against played moves
// (what each agent was told happened). Both histories must be the same length;
// noise makes them differ. Pass the same history twice for noiseless games.
func Evaluate(pm engine.PayoffMatrix, intended, played engine.History) Report {
	n := len(intended)
	if len(played) < n {
		n = len(played)
	}
	return Report{
		P1: evaluateSeat(pm, engine.P1, intended[:n], played[:n]),
		P2: evaluateSeat(pm, engine.P2, intended[:n], played[:n]),
	}
}

func evaluateSeat(pm engine.PayoffMatrix, s engine.Seat, intended, played engine.History) SeatReport {
	m := pm.ForSeat(s)
	rep := SeatReport{Rounds: len(intended)}
	own := make([]engine.Move, len(intended))
	opp := make([]engine.Move, len(played))
	for i := range intended {
		own[i], _ = intended[i].For(s)
		_, opp[i] = played[i].For(s)

		if own[i] == engine.Cooperate {
			rep.Cooperations++
		}
		got, _ := m.Score(own[i], opp[i])
		alt, _ := m.Score(own[i].Opposite(), opp[i])
		if got >= alt {
			rep.BestResponses++
		} else {
			rep.Regret += alt - got
		}
	}
	rep.Strategy = Classify(own, opp)
	return rep
}

// Classify names the simplest rule consistent with own given the opponent
// moves the player observed. Constant strategies win ties with reactive ones.
func Classify(own, opp []engine.Move) Strategy {
	if len(own) == 0 {
		return Unknown
	}
	switch {
	case all(own, engine.Cooperate):
		return AlwaysCooperate
	case all(own, engine.Defect):
		return AlwaysDefect
	case isTitForTat(own, opp):
		return TitForTat
	case isGrimTrigger(own, opp):
		return GrimTrigger
	}
	return Mixed
}

func all(ms []engine.Move, m engine.Move) bool {
	for _, x := range ms {
		if x != m {
			return false
		}
	}
	return true
}

func isTitForTat(own, opp []engine.Move) bool {
	if own[0] != engine.Cooperate {
		return false
	}
	for i := 1; i < len(own); i++ {
		if own[i] != opp[i-1] {
			return false
		}
	}
	return true
}

func isGrimTrigger(own, opp []engine.Move) bool {
	triggered := false
	for i := range own {
		want := engine.Cooperate
		if triggered {
			want = engine.Defect
		}
		if own[i] != want {
			return false
		}
		if opp[i] == engine.Defect {
			triggered = true
		}
	}
	return true
}
