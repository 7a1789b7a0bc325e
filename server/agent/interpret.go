package agent

import (
	"regexp"
	"strings"

	"coop-arena/server/engine"
)

var (
	reOptionJ = regexp.MustCompile(`^option\s+j\b`)
	reBareJ   = regexp.MustCompile(`^j\b`)
	reOptionF = regexp.MustCompile(`^option\s+f\b`)
	reBareF   = regexp.MustCompile(`^f\b`)
)

// Interpret maps raw agent text to a move. Only the text after the last answer
// cue counts, so completion backends that echo the prompt are handled. The
// canonical tokens "option j"/"j" and "option f"/"f" are matched, never the
// configured labels; ok is false when nothing matches.
func Interpret(raw, optionJ, optionF string) (engine.Move, bool) {
	resp := raw
	if i := strings.LastIndex(raw, AnswerCue); i >= 0 {
		resp = raw[i+len(AnswerCue):]
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	resp = strings.NewReplacer(".", "", ",", "").Replace(resp)

	switch {
	case reOptionJ.MatchString(resp) || reBareJ.MatchString(resp):
		return engine.Cooperate, true
	case reOptionF.MatchString(resp) || reBareF.MatchString(resp):
		return engine.Defect, true
	}
	return engine.Cooperate, false
}
