package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/curatorlabs/curator/llm"
	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/srs"
)

// DefaultFuzzyThreshold is the minimum similarity ratio, in (0, 1], for a
// fuzzy match.
const DefaultFuzzyThreshold = 0.7

// SearchOptions narrows which card fields a search inspects and how literally
// it compares.
type SearchOptions struct {
	CaseSensitive bool
	InQuestion    bool
	InAnswer      bool
}

// DefaultSearchOptions searches both sides, ignoring case.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{InQuestion: true, InAnswer: true}
}

// SearchBySubstring returns every card whose searched fields contain the
// query.
func SearchBySubstring(cards []models.Card, query string, opts SearchOptions) []models.Card {
	needle := query
	if !opts.CaseSensitive {
		needle = strings.ToLower(query)
	}
	contains := func(text string) bool {
		if !opts.CaseSensitive {
			text = strings.ToLower(text)
		}
		return strings.Contains(text, needle)
	}

	var matched []models.Card
	for _, card := range cards {
		if (opts.InQuestion && contains(card.Question)) ||
			(opts.InAnswer && contains(card.Answer)) {
			matched = append(matched, card)
		}
	}
	return matched
}

// SearchFuzzy returns cards whose searched fields score at or above the
// threshold ratio against the query. Fuzzy scoring always ignores case.
func SearchFuzzy(cards []models.Card, query string, threshold float64, opts SearchOptions) []models.Card {
	minScore := int(threshold * 100)
	var matched []models.Card
	for _, card := range cards {
		if (opts.InQuestion && PartialRatio(query, card.Question) >= minScore) ||
			(opts.InAnswer && PartialRatio(query, card.Answer) >= minScore) {
			matched = append(matched, card)
		}
	}
	return matched
}

// PartialRatio scores how well the shorter string matches the best aligned
// window of the longer one, 0 to 100. Scoring uses Levenshtein distance over
// lowercased input.
func PartialRatio(a, b string) int {
	shorter, longer := strings.ToLower(a), strings.ToLower(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}

	sRunes, lRunes := []rune(shorter), []rune(longer)
	best := 0
	for start := 0; start+len(sRunes) <= len(lRunes); start++ {
		window := string(lRunes[start : start+len(sRunes)])
		distance := matchr.Levenshtein(shorter, window)
		score := 100 * (len(sRunes) - distance) / len(sRunes)
		if score > best {
			best = score
		}
		if best == 100 {
			break
		}
	}
	return best
}

const contentJudgePrompt = `You are a strict matcher. Decide whether the flashcard below matches the description.

Description: %s

%s

Respond with exactly one word: true or false.`

// SearchByContent asks the judge model, card by card, whether each card
// matches a free-form description. Cards the judge cannot give a clear
// verdict on are skipped.
func SearchByContent(ctx context.Context, judge llm.Client, cards []models.Card, description string) ([]models.Card, error) {
	var matched []models.Card
	for i := range cards {
		card := &cards[i]
		prompt := fmt.Sprintf(contentJudgePrompt, description, srs.FormatCard(card))

		verdict, err := llm.GenerateSingle(ctx, judge, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to judge card %s: %w", card.ID, err)
		}

		switch strings.ToLower(strings.TrimSpace(verdict)) {
		case "true":
			matched = append(matched, *card)
		case "false":
		default:
			slog.Warn("Unparseable judge verdict, skipping card", "card_id", card.ID, "verdict", verdict)
		}
	}
	return matched, nil
}
