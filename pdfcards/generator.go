package pdfcards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curatorlabs/curator/llm"
)

// MaxCardsPerPage bounds how many drafts one page may produce.
const MaxCardsPerPage = 3

// CardDraft is one question/answer pair proposed from a page.
type CardDraft struct {
	Question string
	Answer   string
}

// ProgressFunc reports page-level progress while a document is processed.
type ProgressFunc func(page, total, cardsSoFar int)

const pagePromptTemplate = `You create flashcards from lecture material. Read the page below and write at most %d flashcards covering its most important facts.

Format each card exactly like this, with a blank line between cards:

Q: <question>
A: <answer>

If the page has no content worth a flashcard, respond with the single word NONE.

Page text:
%s`

// Generator asks a model to draft flashcards for each page of a document.
type Generator struct {
	client llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// GenerateFromPDF drafts cards for every non-empty page of the PDF at path.
func (g *Generator) GenerateFromPDF(ctx context.Context, path string, progress ProgressFunc) ([]CardDraft, error) {
	reader, err := OpenPDF(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return g.Generate(ctx, reader, progress)
}

// Generate drafts cards for every non-empty page of the document.
func (g *Generator) Generate(ctx context.Context, reader Reader, progress ProgressFunc) ([]CardDraft, error) {
	total := reader.NumPages()
	var drafts []CardDraft

	for page := 1; page <= total; page++ {
		text, err := reader.PageText(page)
		if err != nil {
			slog.Warn("Skipping unreadable page", "page", page, "error", err)
			continue
		}
		if text == "" {
			continue
		}

		pageDrafts, err := g.generatePage(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to generate cards for page %d: %w", page, err)
		}
		drafts = append(drafts, pageDrafts...)

		if progress != nil {
			progress(page, total, len(drafts))
		}
	}

	slog.Info("Generated card drafts", "pages", total, "cards", len(drafts))
	return drafts, nil
}

func (g *Generator) generatePage(ctx context.Context, pageText string) ([]CardDraft, error) {
	prompt := fmt.Sprintf(pagePromptTemplate, MaxCardsPerPage, pageText)

	response, err := llm.GenerateSingle(ctx, g.client, prompt)
	if err != nil {
		return nil, err
	}

	drafts := ParseCardBlocks(response)
	if len(drafts) > MaxCardsPerPage {
		drafts = drafts[:MaxCardsPerPage]
	}
	return drafts, nil
}

// ParseCardBlocks extracts Q:/A: pairs from a model response. Blocks are
// separated by blank lines; blocks missing either side are dropped.
func ParseCardBlocks(response string) []CardDraft {
	response = strings.ReplaceAll(response, "\r\n", "\n")
	if strings.EqualFold(strings.TrimSpace(response), "NONE") {
		return nil
	}

	var drafts []CardDraft
	for _, block := range strings.Split(response, "\n\n") {
		var question, answer strings.Builder
		var current *strings.Builder

		for _, line := range strings.Split(block, "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "Q:"):
				current = &question
				current.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "Q:")))
			case strings.HasPrefix(trimmed, "A:"):
				current = &answer
				current.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "A:")))
			case current != nil && trimmed != "":
				// Continuation line of the current side.
				current.WriteString(" ")
				current.WriteString(trimmed)
			}
		}

		q, a := question.String(), answer.String()
		if q == "" || a == "" {
			continue
		}
		drafts = append(drafts, CardDraft{Question: q, Answer: a})
	}
	return drafts
}
