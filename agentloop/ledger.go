package agentloop

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// LedgerFileName is the requirements ledger file, relative to the working
// directory.
const LedgerFileName = "prd.json"

// Story is one user story in the requirements ledger.
type Story struct {
	StoryID    string `json:"storyId"`
	StoryTitle string `json:"storyTitle"`
	Passes     bool   `json:"passes"`
	Notes      string `json:"notes,omitempty"`
}

// Ledger is the persisted prd.json document.
type Ledger struct {
	BranchName  string  `json:"branchName"`
	UserStories []Story `json:"userStories"`
}

// defaultLedger is the structure used when prd.json is absent or malformed.
func defaultLedger() *Ledger {
	return &Ledger{BranchName: "main", UserStories: []Story{}}
}

// LoadLedger reads the ledger at path. A missing file or malformed JSON
// yields the empty default, not an error: the ledger is best-effort state
// the agent rebuilds by appending.
func LoadLedger(path string) *Ledger {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultLedger()
	}
	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return defaultLedger()
	}
	if ledger.UserStories == nil {
		ledger.UserStories = []Story{}
	}
	if ledger.BranchName == "" {
		ledger.BranchName = "main"
	}
	return &ledger
}

// Save writes the ledger pretty-printed with 2-space indentation. The
// read-modify-write cycle is not atomic; a single writer per run is assumed.
func (l *Ledger) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// AppendStory adds a new story with passes=false. When storyID is empty a
// short random ID is generated. ID uniqueness is the caller's concern.
func (l *Ledger) AppendStory(storyTitle, storyID, notes string) Story {
	if storyID == "" {
		storyID = uuid.New().String()[:8]
	}
	story := Story{
		StoryID:    storyID,
		StoryTitle: storyTitle,
		Passes:     false,
		Notes:      notes,
	}
	l.UserStories = append(l.UserStories, story)
	return story
}
