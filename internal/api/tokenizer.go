package api

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// The chat backend never reports usage, so replies are measured locally with
// cl100k_base. The count is shown in the status line and logged; it is an
// estimate whatever model the backend runs.
var replyCodec = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.Get(tokenizer.Cl100kBase)
})

// CountTokens measures text with the reply codec.
func CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := replyCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ReplyTokens is CountTokens for display: a reply that cannot be measured
// counts as 0.
func ReplyTokens(reply string) int {
	n, err := CountTokens(reply)
	if err != nil {
		log.Debug("Could not count reply tokens: %v", err)
		return 0
	}
	return n
}
