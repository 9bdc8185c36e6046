package ai

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestKnowledgeBaseSearchRanksByOverlap(t *testing.T) {
	kb := &KnowledgeBase{}
	kb.addDocument("billing.md", "The billing service exports invoices every night and retries failed exports.")
	kb.addDocument("deploy.md", "Deployments run through the staging cluster before production rollout.")
	kb.addDocument("oncall.md", "The oncall rotation covers billing invoice escalations and deployment failures.")

	hits := kb.Search("billing invoice exports", 2)
	if len(hits) == 0 {
		t.Fatalf("expected matches")
	}
	if hits[0].Source != "billing.md" {
		t.Fatalf("expected billing.md ranked first, got %s", hits[0].Source)
	}

	if hits := kb.Search("kubernetes operator", 3); len(hits) != 0 {
		t.Fatalf("expected no matches for unrelated query, got %d", len(hits))
	}
	if hits := kb.Search("", 3); len(hits) != 0 {
		t.Fatalf("expected no matches for empty query")
	}
}

func TestKnowledgeBaseSearchHonorsLimit(t *testing.T) {
	kb := &KnowledgeBase{}
	for i := 0; i < 5; i++ {
		kb.addDocument("notes.md", "release checklist for the payments release train")
	}
	if got := len(kb.Search("release checklist", 2)); got != 2 {
		t.Fatalf("expected 2 hits, got %d", got)
	}
}

func TestLoadKnowledgeBaseReadsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "handbook.txt"), []byte("expense reports are due on the first friday"), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	kb, err := LoadKnowledgeBase(context.Background(), dir)
	if err != nil {
		t.Fatalf("load knowledge base: %v", err)
	}
	if kb.Len() == 0 {
		t.Fatalf("expected chunks loaded")
	}
	hits := kb.Search("expense reports", 1)
	if len(hits) != 1 || hits[0].Source != "handbook.txt" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestLoadKnowledgeBaseEmptyDir(t *testing.T) {
	kb, err := LoadKnowledgeBase(context.Background(), "")
	if err != nil || kb != nil {
		t.Fatalf("expected nil kb for empty dir, got %v %v", kb, err)
	}
}

func TestSplitChunks(t *testing.T) {
	pieces := splitChunks("abcdefghij", 4)
	if len(pieces) != 3 || pieces[0] != "abcd" || pieces[2] != "ij" {
		t.Fatalf("unexpected chunks: %v", pieces)
	}
}
