package assistant

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatorlabs/curator/llm"
	"github.com/curatorlabs/curator/models"
)

func sampleCards() []models.Card {
	return []models.Card{
		{ID: "c1", Question: "What is the powerhouse of the cell?", Answer: "The mitochondria."},
		{ID: "c2", Question: "What is the capital of France?", Answer: "Paris."},
		{ID: "c3", Question: "Define photosynthesis", Answer: "Conversion of light energy into chemical energy."},
	}
}

func TestSearchBySubstring(t *testing.T) {
	cards := sampleCards()

	tests := []struct {
		name     string
		query    string
		opts     SearchOptions
		expected []string
	}{
		{"Match in question", "powerhouse", DefaultSearchOptions(), []string{"c1"}},
		{"Match in answer", "paris", DefaultSearchOptions(), []string{"c2"}},
		{"Case insensitive by default", "MITOCHONDRIA", DefaultSearchOptions(), []string{"c1"}},
		{"Multiple matches", "energy", DefaultSearchOptions(), []string{"c3"}},
		{"No match", "quantum", DefaultSearchOptions(), nil},
		{"Question side only", "paris", SearchOptions{InQuestion: true}, nil},
		{"Answer side only", "paris", SearchOptions{InAnswer: true}, []string{"c2"}},
		{"Case sensitive hit", "Paris", SearchOptions{CaseSensitive: true, InQuestion: true, InAnswer: true}, []string{"c2"}},
		{"Case sensitive miss", "paris", SearchOptions{CaseSensitive: true, InQuestion: true, InAnswer: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched := SearchBySubstring(cards, tt.query, tt.opts)
			var ids []string
			for _, card := range matched {
				ids = append(ids, card.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{"Identical", "hello", "hello", 100},
		{"Substring", "paris", "the capital is paris today", 100},
		{"Case insensitive", "PARIS", "paris", 100},
		{"Empty query", "", "anything", 0},
		{"Both empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PartialRatio(tt.a, tt.b))
		})
	}
}

func TestPartialRatioNearMatch(t *testing.T) {
	// One substitution across a 12 rune window scores above 90.
	score := PartialRatio("mitochondria", "the mitochondria makes energy")
	assert.Equal(t, 100, score)

	score = PartialRatio("mitochondrio", "the mitochondria makes energy")
	assert.GreaterOrEqual(t, score, 90)
	assert.Less(t, score, 100)
}

func TestSearchFuzzy(t *testing.T) {
	cards := sampleCards()

	matched := SearchFuzzy(cards, "mitochondria", DefaultFuzzyThreshold, DefaultSearchOptions())
	require.Len(t, matched, 1)
	assert.Equal(t, "c1", matched[0].ID)

	matched = SearchFuzzy(cards, "mitochondrial", DefaultFuzzyThreshold, DefaultSearchOptions())
	require.Len(t, matched, 1)
	assert.Equal(t, "c1", matched[0].ID)

	matched = SearchFuzzy(cards, "zzzzzzzz", DefaultFuzzyThreshold, DefaultSearchOptions())
	assert.Empty(t, matched)

	// The answer-side match disappears when only questions are searched.
	matched = SearchFuzzy(cards, "mitochondria", DefaultFuzzyThreshold, SearchOptions{InQuestion: true})
	assert.Empty(t, matched)

	// A stricter ratio rejects what the default accepts.
	matched = SearchFuzzy(cards, "mitochondrxx", 1.0, DefaultSearchOptions())
	assert.Empty(t, matched)
}

// verdictClient answers true for cards whose question contains the marker.
type verdictClient struct {
	marker string
	calls  int
	fail   bool
}

func (c *verdictClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	c.calls++
	if c.fail {
		return "", fmt.Errorf("backend unavailable")
	}
	if strings.Contains(messages[len(messages)-1].Content, c.marker) {
		return "true", nil
	}
	return "false", nil
}

func (c *verdictClient) Description() string { return "verdict-test" }

func TestSearchByContent(t *testing.T) {
	cards := sampleCards()
	judge := &verdictClient{marker: "France"}

	matched, err := SearchByContent(context.Background(), judge, cards, "geography cards")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "c2", matched[0].ID)
	assert.Equal(t, len(cards), judge.calls)
}

func TestSearchByContentJudgeError(t *testing.T) {
	judge := &verdictClient{fail: true}

	_, err := SearchByContent(context.Background(), judge, sampleCards(), "anything")
	assert.Error(t, err)
}

// noisyClient returns verdicts with surrounding prose the matcher must skip.
type noisyClient struct{}

func (noisyClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return "I think the answer is maybe", nil
}

func (noisyClient) Description() string { return "noisy-test" }

func TestSearchByContentUnparseableVerdict(t *testing.T) {
	matched, err := SearchByContent(context.Background(), noisyClient{}, sampleCards(), "anything")
	require.NoError(t, err)
	assert.Empty(t, matched)
}
