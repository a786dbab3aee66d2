package responder

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog/log"

	"studentbot-web/internal/store"
)

type CorpusOptions struct {
	// Matches scoring below Threshold get DefaultResponse.
	Threshold       float64
	DefaultResponse string
	// Learn stores every exchange back into the statement store.
	Learn bool
}

// CorpusResponder answers with the stored response to the closest known prompt.
type CorpusResponder struct {
	store store.StatementStore
	opts  CorpusOptions
}

func NewCorpusResponder(st store.StatementStore, opts CorpusOptions) *CorpusResponder {
	if opts.DefaultResponse == "" {
		opts.DefaultResponse = "I am sorry, but I do not understand."
	}
	return &CorpusResponder{store: st, opts: opts}
}

// Match is the closest known prompt to an input and its similarity in [0, 1].
type Match struct {
	Prompt     string
	Confidence float64
}

func (c *CorpusResponder) Respond(ctx context.Context, message string) (string, error) {
	match, err := c.ClosestMatch(ctx, message)
	if err != nil {
		return "", err
	}

	reply := c.opts.DefaultResponse
	known := false
	if match.Prompt != "" && match.Confidence >= c.opts.Threshold {
		resps, err := c.store.Responses(ctx, match.Prompt)
		if err != nil {
			return "", err
		}
		if text := mostFrequent(resps); text != "" {
			reply = text
			known = true
		}
	}
	log.Debug().
		Str("prompt", match.Prompt).
		Float64("confidence", match.Confidence).
		Bool("known", known).
		Msg("corpus match")

	if c.opts.Learn {
		if err := c.learn(ctx, message, reply, known); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// ClosestMatch scores every known prompt against message.
func (c *CorpusResponder) ClosestMatch(ctx context.Context, message string) (Match, error) {
	prompts, err := c.store.Prompts(ctx)
	if err != nil {
		return Match{}, err
	}
	in := normalize(message)
	var best Match
	for _, p := range prompts {
		score := Similarity(in, normalize(p))
		if score > best.Confidence || best.Prompt == "" {
			best = Match{Prompt: p, Confidence: score}
		}
		if score == 1 {
			break
		}
	}
	return best, nil
}

func (c *CorpusResponder) learn(ctx context.Context, message, reply string, known bool) error {
	conv, _ := ConversationFrom(ctx)
	if _, err := c.store.Create(ctx, store.Statement{
		Text:         message,
		InResponseTo: conv.LastReply(),
		Conversation: conv.ID,
	}); err != nil {
		return fmt.Errorf("failed to learn input: %w", err)
	}
	if !known {
		return nil
	}
	if _, err := c.store.Create(ctx, store.Statement{
		Text:         reply,
		InResponseTo: message,
		Conversation: conv.ID,
	}); err != nil {
		return fmt.Errorf("failed to learn reply: %w", err)
	}
	return nil
}

// Similarity is 1 minus the Levenshtein distance over the longer length, in runes.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, ".!?")
}

// mostFrequent picks the most common text; on a tie the text that reached
// the count first wins.
func mostFrequent(sts []store.Statement) string {
	counts := make(map[string]int, len(sts))
	best, bestN := "", 0
	for _, st := range sts {
		counts[st.Text]++
		if n := counts[st.Text]; n > bestN {
			best, bestN = st.Text, n
		}
	}
	return best
}
