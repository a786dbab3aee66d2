package store

import (
	"context"
	"time"
)

// Statement is one line of the responder's corpus. InResponseTo is empty
// when the statement opens a conversation.
type Statement struct {
	ID           int64
	Text         string
	InResponseTo string
	Conversation string
	CreatedAt    time.Time
}

// StatementStore persists statements and the record of trained corpora.
// Implementations must be safe for concurrent use.
type StatementStore interface {
	Create(ctx context.Context, st Statement) (Statement, error)
	CreateMany(ctx context.Context, sts []Statement) error
	// Prompts returns every distinct text some statement responds to.
	Prompts(ctx context.Context) ([]string, error)
	// Responses returns the statements answering prompt, oldest first.
	Responses(ctx context.Context, prompt string) ([]Statement, error)
	Count(ctx context.Context) (int, error)
	IsTrained(ctx context.Context, corpus string) (bool, error)
	MarkTrained(ctx context.Context, corpus string, statements int) error
	// CreateCorpus saves sts and marks corpus trained atomically.
	CreateCorpus(ctx context.Context, corpus string, sts []Statement) error
}
