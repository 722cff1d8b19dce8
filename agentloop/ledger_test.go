package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadLedgerMissingFile(t *testing.T) {
	ledger := LoadLedger(filepath.Join(t.TempDir(), "prd.json"))
	if ledger.BranchName != "main" {
		t.Errorf("branch = %q, want main", ledger.BranchName)
	}
	if len(ledger.UserStories) != 0 {
		t.Errorf("stories = %v, want empty", ledger.UserStories)
	}
}

func TestLoadLedgerMalformedResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	ledger := LoadLedger(path)
	if ledger.BranchName != "main" || len(ledger.UserStories) != 0 {
		t.Errorf("malformed file did not reset: %+v", ledger)
	}
}

func TestLedgerSaveFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.json")
	ledger := defaultLedger()
	ledger.AppendStory("Add login page", "story-1", "")
	if err := ledger.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "  \"branchName\": \"main\"") {
		t.Errorf("expected 2-space indentation, got:\n%s", text)
	}
	if !strings.Contains(text, "\"storyId\": \"story-1\"") {
		t.Errorf("story not persisted:\n%s", text)
	}
	if strings.Contains(text, "\"notes\"") {
		t.Errorf("empty notes should be omitted:\n%s", text)
	}
}

func TestAppendStoryGeneratesID(t *testing.T) {
	ledger := defaultLedger()
	story := ledger.AppendStory("Untitled", "", "")
	if len(story.StoryID) != 8 {
		t.Errorf("generated ID = %q, want 8 chars", story.StoryID)
	}
	if story.Passes {
		t.Error("new story must start with passes=false")
	}
}

func TestLedgerRoundTripPreservesPasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.json")
	ledger := defaultLedger()
	ledger.AppendStory("One", "a", "")
	ledger.UserStories[0].Passes = true
	if err := ledger.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := LoadLedger(path)
	loaded.AppendStory("Two", "b", "")
	if err := loaded.Save(path); err != nil {
		t.Fatal(err)
	}

	final := LoadLedger(path)
	if len(final.UserStories) != 2 {
		t.Fatalf("story count = %d, want 2", len(final.UserStories))
	}
	if !final.UserStories[0].Passes {
		t.Error("append lost the first story's passes flag")
	}
}
