package domain

import "time"

// Card represents a single front/back entry in a module.
type Card struct {
	ID       int64    `json:"id"`
	ModuleID int64    `json:"module_id"`
	Front    string   `json:"front"`
	Back     string   `json:"back"`
	Context  string   `json:"context,omitempty"`
	Examples []string `json:"examples,omitempty"`
	Hash     string   `json:"hash"`
}

// ModuleKind tells where the cards of a module come from.
type ModuleKind string

const (
	ModuleLocal ModuleKind = "local"
	ModuleGit   ModuleKind = "git"
)

// Module is a deck of cards owned by a single user. Path is optional and
// points at the directory or git repository the deck is synced from.
type Module struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Path        string     `json:"path,omitempty"`
	Kind        ModuleKind `json:"kind"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

// ReviewEvent records a single grading of a card. Events are append-only;
// they are removed only by a card reset or a card/module deletion.
type ReviewEvent struct {
	ID               string    `json:"id"`
	CardID           int64     `json:"card_id"`
	UserID           int64     `json:"user_id"`
	Grade            Grade     `json:"grade"`
	StateBefore      State     `json:"state_before"`
	GradedAt         time.Time `json:"graded_at"`
	CountsTowardGoal bool      `json:"counts_toward_goal"`
}
