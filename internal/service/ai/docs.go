package ai

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

const kbChunkSize = 1200

// KnowledgeBase holds the parsed project documents loaded at startup. Lookups
// score chunks by query token overlap; there is no external index.
type KnowledgeBase struct {
	chunks []kbChunk
}

type kbChunk struct {
	source  string
	content string
	tokens  map[string]struct{}
}

// Hit is one matching passage returned by Search.
type Hit struct {
	Source  string
	Content string
}

// LoadKnowledgeBase parses every readable document under dir. Files that fail
// to parse are skipped with a log line so one bad document cannot block
// startup.
func LoadKnowledgeBase(ctx context.Context, dir string) (*KnowledgeBase, error) {
	if dir == "" {
		return nil, nil
	}
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init document parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}

	kb := &KnowledgeBase{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		docs, err := loader.Load(ctx, document.Source{URI: path})
		if err != nil {
			log.Printf("knowledge base: skipping %s: %v", path, err)
			return nil
		}
		rel := path
		if r, err := filepath.Rel(dir, path); err == nil {
			rel = r
		}
		for _, doc := range docs {
			kb.addDocument(rel, doc.Content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge dir: %w", err)
	}
	log.Printf("knowledge base: loaded %d chunks from %s", len(kb.chunks), dir)
	return kb, nil
}

func (kb *KnowledgeBase) addDocument(source, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	for _, piece := range splitChunks(content, kbChunkSize) {
		kb.chunks = append(kb.chunks, kbChunk{
			source:  source,
			content: piece,
			tokens:  tokenize(piece),
		})
	}
}

// Search returns up to max chunks ranked by shared-token count with the
// query. Chunks with no overlap are never returned.
func (kb *KnowledgeBase) Search(query string, max int) []Hit {
	if kb == nil || max <= 0 {
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score int
	}
	var matches []scored
	for i, chunk := range kb.chunks {
		score := 0
		for tok := range queryTokens {
			if _, ok := chunk.tokens[tok]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{idx: i, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > max {
		matches = matches[:max]
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		chunk := kb.chunks[m.idx]
		hits = append(hits, Hit{Source: chunk.source, Content: chunk.content})
	}
	return hits
}

// Len reports how many chunks are loaded.
func (kb *KnowledgeBase) Len() int {
	if kb == nil {
		return 0
	}
	return len(kb.chunks)
}

func splitChunks(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]{}\"'")
		if len(word) < 3 {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}
