package agent

import (
	"fmt"
	"strings"

	"coop-arena/server/engine"
)

// AnswerCue ends every move request; Interpret reads what follows its last occurrence.
const AnswerCue = "A:"

const noiseNotice = "Be aware that the other player can make mistakes."

// Compose builds the full prompt for seat s before round len(history)+1.
// Output depends only on the arguments.
func Compose(history engine.History, s engine.Seat, cfg engine.Config, withNoiseNotice bool) string {
	var b strings.Builder
	b.WriteString(rulesHeader(s, cfg))
	if withNoiseNotice {
		b.WriteString("\n")
		b.WriteString(noiseNotice)
	}
	pm := cfg.Payoff.ForSeat(s)
	for i, r := range history {
		own, opp := r.For(s)
		ownPts, oppPts := pm.Score(own, opp)
		fmt.Fprintf(&b, "\nIn round %d, you chose %s and the other player chose %s. Thus, you won %d points and the other player won %d points.",
			i+1, own.Label(cfg.OptionJ, cfg.OptionF), opp.Label(cfg.OptionJ, cfg.OptionF), ownPts, oppPts)
	}
	b.WriteString("\n")
	b.WriteString(moveRequest(len(history)+1, cfg))
	return b.String()
}

func rulesHeader(s engine.Seat, cfg engine.Config) string {
	j, f := cfg.OptionJ, cfg.OptionF
	pm := cfg.Payoff.ForSeat(s)
	var b strings.Builder
	fmt.Fprintf(&b, "You are playing a game repeatedly with another player. In this game, you can choose between %s and %s. You will play %d rounds in total with the same player.\n", j, f, cfg.Rounds)
	b.WriteString("The rules of the game are as follows:")
	for _, own := range []engine.Move{engine.Cooperate, engine.Defect} {
		for _, opp := range []engine.Move{engine.Cooperate, engine.Defect} {
			ownPts, oppPts := pm.Score(own, opp)
			fmt.Fprintf(&b, "\n- If you choose %s and the other player chooses %s, then you win %d points and the other player wins %d points.",
				own.Label(j, f), opp.Label(j, f), ownPts, oppPts)
		}
	}
	return b.String()
}

func moveRequest(round int, cfg engine.Config) string {
	return fmt.Sprintf("You are currently playing round %d.\nQ: Which option do you choose, '%s' or '%s'? (type either option, without any additional text)\n%s",
		round, cfg.OptionJ, cfg.OptionF, AnswerCue)
}

// Insist is the corrective instruction added after an unparseable answer.
func Insist(cfg engine.Config) string {
	return fmt.Sprintf("Invalid answer. Please answer exactly either '%s' or '%s'.\nQ: Which option do you choose, '%s' or '%s'?\n%s",
		cfg.OptionJ, cfg.OptionF, cfg.OptionJ, cfg.OptionF, AnswerCue)
}
