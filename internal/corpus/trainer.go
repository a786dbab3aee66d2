package corpus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"studentbot-web/internal/store"
)

// TrainingConversation tags statements that came from a corpus.
const TrainingConversation = "training"

type Trainer struct {
	store store.StatementStore
}

func NewTrainer(st store.StatementStore) *Trainer {
	return &Trainer{store: st}
}

// Train stores every conversation line in response to the line before it.
// Corpora already recorded as trained are skipped. Returns the number of
// statements written.
func (t *Trainer) Train(ctx context.Context, corpora ...Corpus) (int, error) {
	total := 0
	for _, c := range corpora {
		done, err := t.store.IsTrained(ctx, c.Name)
		if err != nil {
			return total, err
		}
		if done {
			log.Debug().Str("corpus", c.Name).Msg("corpus already trained, skipping")
			continue
		}

		sts := Statements(c)
		if err := t.store.CreateCorpus(ctx, c.Name, sts); err != nil {
			return total, fmt.Errorf("failed to train corpus %s: %w", c.Name, err)
		}
		total += len(sts)
		log.Info().Str("corpus", c.Name).Int("statements", len(sts)).Msg("trained corpus")
	}
	return total, nil
}

// Statements flattens a corpus into statements linked to their predecessor.
func Statements(c Corpus) []store.Statement {
	var out []store.Statement
	for _, conv := range c.Conversations {
		prev := ""
		for _, text := range conv {
			out = append(out, store.Statement{
				Text:         text,
				InResponseTo: prev,
				Conversation: TrainingConversation,
			})
			prev = text
		}
	}
	return out
}
