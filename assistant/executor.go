package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curatorlabs/curator/llm"
)

const (
	// maxTurns caps the command/result round trips for one task.
	maxTurns = 10
	// maxErrors aborts a task once the model has produced this many failed
	// or unparseable commands.
	maxErrors = 5
	// streamChunkSize is how many cards are shown per streaming turn.
	streamChunkSize = 3
	// chunkMaxMessages caps the command round trips on a single chunk before
	// the stream moves on.
	chunkMaxMessages = 3
	// chunkMaxErrors caps failed commands on a single chunk.
	chunkMaxErrors = 3
)

const systemPromptTemplate = `You are a study assistant managing the user's flashcard collection.

You act only by calling commands inside <execute> blocks. Example:

<execute>
create_deck("Biology")
add_card(deck="Biology", question="What does ATP stand for?", answer="Adenosine triphosphate")
</execute>

Available commands:
%s
Rules:
- Reply only with <execute> blocks. Text outside of them is ignored.
- Write one command per line using quoted string literals.
- The results of your commands arrive in the next message. Wait for them before depending on them.
- If the task asks a question, call answer_question(answer) with the answer.
- When the task is done, call finish_task(message) with a short closing message for the user.
- An empty <execute></execute> block also ends the task.`

// Result is the terminal outcome of one task.
type Result struct {
	TaskFinishMessage string
	QuestionAnswer    string
}

// Executor drives the command loop for user tasks: it prompts the model,
// parses the commands it emits, runs them and feeds the results back until
// the model finishes or a cap is hit.
type Executor struct {
	env    *Env
	client llm.Client
}

func NewExecutor(env *Env, client llm.Client) *Executor {
	return &Executor{env: env, client: client}
}

// Execute runs one task to completion.
func (e *Executor) Execute(ctx context.Context, task string) (*Result, error) {
	state := &runState{}
	registry := NewRegistry(e.env, state)

	conv := llm.NewConversation(e.client)
	if err := conv.SetSystemPrompt(fmt.Sprintf(systemPromptTemplate, registry.Describe())); err != nil {
		return nil, err
	}

	message := "Task: " + task
	errorCount := 0

	for turn := 0; turn < maxTurns; turn++ {
		response, err := conv.Send(ctx, message)
		if err != nil {
			return nil, fmt.Errorf("failed to generate commands: %w", err)
		}

		blocks := ExtractExecuteBlocks(response)
		if len(blocks) == 0 {
			errorCount++
			if errorCount >= maxErrors {
				return nil, fmt.Errorf("task aborted after %d errors", errorCount)
			}
			message = "Reply only with commands inside <execute> blocks. Call finish_task(message) when you are done."
			continue
		}

		var results []string
		sawCall := false
		for _, block := range blocks {
			if block == "" {
				continue
			}

			calls, err := ParseCalls(block)
			if err != nil {
				errorCount++
				if errorCount >= maxErrors {
					return nil, fmt.Errorf("task aborted after %d errors: %w", errorCount, err)
				}
				results = append(results, fmt.Sprintf("ERROR: %v", err))
				continue
			}

			for _, call := range calls {
				sawCall = true
				output, err := e.runCall(ctx, conv, registry, state, call)
				if err != nil {
					errorCount++
					if errorCount >= maxErrors {
						return nil, fmt.Errorf("task aborted after %d errors: %w", errorCount, err)
					}
					slog.Warn("Command failed", "command", call.Name, "error", err)
					results = append(results, fmt.Sprintf("ERROR in %s: %v", call.Name, err))
					continue
				}
				results = append(results, output)

				if state.finished {
					break
				}
			}
			if state.finished {
				break
			}
		}

		// An empty block with no calls at all means the model is done.
		if !sawCall {
			state.finished = true
		}

		if state.finished {
			slog.Info("Task finished", "turns", turn+1, "errors", errorCount)
			return &Result{
				TaskFinishMessage: state.finishMessage,
				QuestionAnswer:    state.questionAnswer,
			}, nil
		}

		message = formatResults(results)
	}

	return nil, fmt.Errorf("task did not finish within %d turns", maxTurns)
}

func (e *Executor) runCall(ctx context.Context, conv *llm.Conversation, registry *Registry, state *runState, call Call) (string, error) {
	cmd, ok := registry.Lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown command %q", call.Name)
	}

	inv := &Invocation{Env: e.env, Call: call}
	if cmd.Stream != nil {
		stream, err := cmd.Stream(ctx, inv)
		if err != nil {
			return "", err
		}
		return e.streamCards(ctx, conv, registry, state, stream)
	}
	return cmd.Run(ctx, inv)
}

// streamCards shows a large card listing to the model in fixed-size chunks
// inside a visibility block, so the cards do not stay in the conversation
// afterwards. On every chunk the model can run commands against the cards it
// just saw; an empty <execute></execute> block advances to the next chunk and
// abort_card_stream(reason) stops the listing early. Message and error counts
// are capped per chunk so a looping model cannot stall the stream.
func (e *Executor) streamCards(ctx context.Context, conv *llm.Conversation, registry *Registry, state *runState, stream *CardStream) (string, error) {
	total := len(stream.Cards)
	if total == 0 {
		return fmt.Sprintf("There are no %s.", stream.Description), nil
	}
	if total <= streamChunkSize {
		return fmt.Sprintf("Here are the %s:\n%s", stream.Description, strings.Join(stream.Cards, "\n")), nil
	}

	conv.StartVisibilityBlock()
	defer conv.EndVisibilityBlock()

	for start := 0; start < total; start += streamChunkSize {
		end := start + streamChunkSize
		if end > total {
			end = total
		}

		message := fmt.Sprintf("Showing %s, cards %d-%d of %d:\n%s\n\n"+
			"You can run commands on these cards now. Send an empty <execute></execute> block for the next chunk, or call abort_card_stream(reason) to stop.",
			stream.Description, start+1, end, total, strings.Join(stream.Cards[start:end], "\n"))

		errorCount := 0
		for msg := 0; msg < chunkMaxMessages; msg++ {
			response, err := conv.Send(ctx, message)
			if err != nil {
				return "", fmt.Errorf("failed to stream cards: %w", err)
			}

			outcome := e.runChunkCommands(ctx, registry, state, response)
			errorCount += outcome.errors
			if outcome.aborted {
				slog.Info("Card stream aborted", "shown", end, "total", total, "reason", outcome.reason)
				return fmt.Sprintf("Showed %d of %d %s before stopping: %s", end, total, stream.Description, outcome.reason), nil
			}
			if state.finished {
				return fmt.Sprintf("Showed %d of %d %s before the task finished.", end, total, stream.Description), nil
			}
			if outcome.advance {
				break
			}
			if errorCount >= chunkMaxErrors {
				slog.Warn("Card stream chunk hit the error cap, advancing", "errors", errorCount)
				break
			}
			message = formatResults(outcome.results)
		}
	}

	return fmt.Sprintf("Showed all %d %s.", total, stream.Description), nil
}

// chunkOutcome is what one streaming response amounted to.
type chunkOutcome struct {
	results []string
	errors  int
	advance bool
	aborted bool
	reason  string
}

// runChunkCommands executes the commands of one streaming response. Card
// listings cannot nest, everything else from the registry is available.
func (e *Executor) runChunkCommands(ctx context.Context, registry *Registry, state *runState, response string) chunkOutcome {
	var out chunkOutcome

	blocks := ExtractExecuteBlocks(response)
	if len(blocks) == 0 {
		out.errors++
		out.results = append(out.results, "ERROR: reply only with commands inside <execute> blocks")
		return out
	}

	sawCall := false
	for _, block := range blocks {
		if block == "" {
			continue
		}
		calls, err := ParseCalls(block)
		if err != nil {
			out.errors++
			out.results = append(out.results, fmt.Sprintf("ERROR: %v", err))
			continue
		}
		for _, call := range calls {
			sawCall = true
			if call.Name == "abort_card_stream" {
				inv := &Invocation{Env: e.env, Call: call}
				reason, err := inv.OptString(0, "reason", "no reason given")
				if err != nil {
					reason = "no reason given"
				}
				out.aborted = true
				out.reason = reason
				return out
			}

			cmd, ok := registry.Lookup(call.Name)
			if !ok {
				out.errors++
				out.results = append(out.results, fmt.Sprintf("ERROR: unknown command %q", call.Name))
				continue
			}
			if cmd.Stream != nil {
				out.errors++
				out.results = append(out.results, fmt.Sprintf("ERROR in %s: card listings cannot be nested", call.Name))
				continue
			}

			output, err := cmd.Run(ctx, &Invocation{Env: e.env, Call: call})
			if err != nil {
				out.errors++
				slog.Warn("Command failed during card stream", "command", call.Name, "error", err)
				out.results = append(out.results, fmt.Sprintf("ERROR in %s: %v", call.Name, err))
				continue
			}
			out.results = append(out.results, output)
			if state.finished {
				return out
			}
		}
	}

	out.advance = !sawCall
	return out
}

func formatResults(results []string) string {
	if len(results) == 0 {
		return "No commands were executed. Call finish_task(message) if the task is done."
	}

	var sb strings.Builder
	sb.WriteString("Results:\n")
	for i, result := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, result)
	}
	return sb.String()
}
