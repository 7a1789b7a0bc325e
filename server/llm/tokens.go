package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// One loader per encoding name. A failed load is remembered so an offline
// sweep pays the BPE fetch at most once per encoding, not once per model.
var encodings = map[string]func() *tiktoken.Tiktoken{}

var encodingsMu sync.Mutex

// CountTokens estimates prompt length. Models tiktoken does not know share
// cl100k_base; if no encoding can be loaded at all, four bytes per token.
func CountTokens(model, text string) int {
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

func encodingName(model string) string {
	if name, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return name
	}
	for prefix, name := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return name
		}
	}
	return tiktoken.MODEL_CL100K_BASE
}

func encoderFor(model string) *tiktoken.Tiktoken {
	name := encodingName(model)
	encodingsMu.Lock()
	load, ok := encodings[name]
	if !ok {
		load = sync.OnceValue(func() *tiktoken.Tiktoken {
			enc, err := tiktoken.GetEncoding(name)
			if err != nil {
				return nil
			}
			return enc
		})
		encodings[name] = load
	}
	encodingsMu.Unlock()
	return load()
}
