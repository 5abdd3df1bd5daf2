package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"

	"limbo/internal/domain"
	"limbo/internal/infra/metrics"
	"limbo/internal/infra/tracer"
)

// DefaultMaxIterations caps the generation loop when no limit is configured.
const DefaultMaxIterations = 10

// GeneratorDeps holds injected dependencies for the generator.
type GeneratorDeps struct {
	Chats            domain.ChatStore
	Tools            ToolCatalog
	Hooks            *HookDispatcher
	Logger           *slog.Logger
	SystemPrompt     string
	MaxIterations    int
	MaxParallelTools int               // 0 = unlimited
	HistoryLimit     int               // 0 = domain.DefaultMessageLimit
	ToolTimeout      time.Duration     // 0 = no per-tool timeout
	Bus              domain.EventBus   // optional, nil = no events
	Metrics          *metrics.Recorder // optional, nil = no metrics
}

// Generator drives chat generations: plugin hooks, LLM turns and tool calls.
// Independent generations may run concurrently.
type Generator struct {
	deps GeneratorDeps
}

// NewGenerator creates a generator with the given dependencies.
func NewGenerator(deps GeneratorDeps) *Generator {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = domain.DefaultMessageLimit
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Generator{deps: deps}
}

// generationRun is the state of one Generate call.
type generationRun struct {
	g       *Generator
	gen     *domain.ChatGeneration
	prompt  *PromptBuilder
	message *MessageBuilder
	logger  *slog.Logger
}

// Generate runs one assistant turn for chatID with llm.
//
// The returned generation is non-nil once preparation succeeded, even when an
// error is returned: it then holds the partial assistant message and
// State == domain.GenerationAborted. Abort errors wrap domain.ErrGenerationAborted
// and the cancellation cause; adapter failures additionally wrap
// domain.ErrProviderError.
func (g *Generator) Generate(ctx context.Context, chatID string, llm domain.LLM) (*domain.ChatGeneration, error) {
	if llm == nil {
		return nil, domain.NewDomainError("Generator.Generate", domain.ErrInvalidInput, "llm is required")
	}
	ctx, span := tracer.StartSpan(domain.ContextWithChatID(ctx, chatID), "generation",
		trace.WithAttributes(
			tracer.StringAttr("chat.id", chatID),
			tracer.StringAttr("llm.id", llm.ID()),
		),
	)
	defer span.End()
	start := time.Now()

	run, err := g.prepare(ctx, chatID, llm)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	gen := run.gen
	g.publish(ctx, domain.EventGenerationStarted, run, nil)

	g.deps.Hooks.Dispatch(ctx, hookBeforeChatGeneration, chatID, func(ctx context.Context, h domain.Hooks) error {
		return h.OnBeforeChatGeneration(ctx, gen)
	})

	runErr := run.iterate(ctx)

	// Teardown must happen even when ctx is cancelled.
	teardown := context.WithoutCancel(ctx)
	if runErr != nil {
		gen.State = domain.GenerationAborted
		gen.Err = runErr
	} else {
		gen.State = domain.GenerationFinalizing
	}
	g.deps.Hooks.Dispatch(teardown, hookAfterChatGeneration, chatID, func(ctx context.Context, h domain.Hooks) error {
		return h.OnAfterChatGeneration(ctx, gen)
	})

	persistErr := run.persist(teardown)

	outcome := "done"
	if runErr != nil {
		outcome = "aborted"
		tracer.RecordError(span, runErr)
		run.logger.Warn("generation aborted", "iterations", len(gen.Iterations), "error", runErr)
		g.publish(teardown, domain.EventGenerationAborted, run, runErr)
	} else {
		gen.State = domain.GenerationDone
		tracer.SetOK(span)
		run.logger.Debug("generation done", "iterations", len(gen.Iterations), "duration", time.Since(start))
		g.publish(teardown, domain.EventGenerationCompleted, run, nil)
	}
	g.deps.Metrics.RecordGeneration(teardown, llm.ID(), outcome, time.Since(start))

	if runErr != nil {
		return gen, runErr
	}
	return gen, persistErr
}

// prepare builds the generation: prompt seeded from history, fresh assistant
// message and fresh context.
func (g *Generator) prepare(ctx context.Context, chatID string, llm domain.LLM) (*generationRun, error) {
	chat, err := g.deps.Chats.Get(ctx, chatID)
	if err != nil {
		return nil, domain.WrapOp("Generator.prepare", err)
	}
	if chat == nil {
		return nil, domain.NewDomainError("Generator.prepare", domain.ErrChatNotFound, chatID)
	}

	history, err := g.deps.Chats.GetMessages(ctx, domain.GetMessagesOptions{
		ChatID: chatID,
		Limit:  g.deps.HistoryLimit,
		Sort:   domain.SortNewest,
	})
	if err != nil {
		return nil, domain.WrapOp("Generator.prepare", err)
	}
	slices.Reverse(history)

	prompt := NewPromptBuilder(llm)
	prompt.SetSystemPrompt(g.deps.SystemPrompt)
	prompt.AppendHistory(history...)

	message := NewMessageBuilder(domain.RoleAssistant, prompt.filter)

	gen := &domain.ChatGeneration{
		ChatID:           chatID,
		LLM:              llm,
		Prompt:           prompt,
		AssistantMessage: message,
		Context:          NewGenerationContext(),
		State:            domain.GenerationPreparing,
	}
	return &generationRun{
		g:       g,
		gen:     gen,
		prompt:  prompt,
		message: message,
		logger:  g.deps.Logger.With("chat_id", chatID, "llm", llm.ID(), "message_id", message.ID()),
	}, nil
}

// iterate runs the loop until a final iteration, an abort or an adapter failure.
func (r *generationRun) iterate(ctx context.Context) error {
	gen := r.gen
	maxIter := r.g.deps.MaxIterations

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return abortError(err)
		}
		gen.State = domain.GenerationIterating
		gen.Iteration = i
		gen.IsFinalIteration = i == maxIter-1

		r.g.deps.Hooks.DispatchUntilAbort(ctx, hookBeforeChatIteration, gen.ChatID, func(ctx context.Context, h domain.Hooks) error {
			return h.OnBeforeChatIteration(ctx, gen)
		})
		if err := ctx.Err(); err != nil {
			return abortError(err)
		}

		iter, err := r.runIteration(ctx, i)
		if err != nil {
			return err
		}

		gen.IsFinalIteration = len(iter.ToolCalls) == 0 || i >= maxIter-1
		r.g.deps.Hooks.DispatchUntilAbort(ctx, hookAfterChatIteration, gen.ChatID, func(ctx context.Context, h domain.Hooks) error {
			return h.OnAfterChatIteration(ctx, gen)
		})
		if err := ctx.Err(); err != nil {
			return abortError(err)
		}
		if gen.IsFinalIteration {
			return nil
		}
	}
}

// runIteration performs one LLM turn and settles the tool calls it requested.
// The iteration is recorded even when it ends in an error.
func (r *generationRun) runIteration(ctx context.Context, index int) (domain.ChatIteration, error) {
	gen := r.gen
	ctx, span := tracer.StartSpan(ctx, "generation.iteration",
		trace.WithAttributes(tracer.IntAttr("iteration", index)),
	)
	defer span.End()
	r.g.publishIteration(ctx, domain.EventIterationStarted, r, index, 0)

	firstNode := r.message.Len()
	toolCalling := domain.HasCapability(gen.LLM, domain.CapabilityToolCalling)
	args := domain.ChatArgs{Prompt: r.prompt.Snapshot(), AssistantMessage: r.message}
	if toolCalling {
		args.Tools = r.g.deps.Tools.Definitions()
	}
	span.SetAttributes(tracer.BoolAttr("tools.offered", toolCalling))

	turnCtx, cancelTurn := context.WithCancel(ctx)
	defer cancelTurn()
	runner := newToolRunner(turnCtx, r, index)

	var turnErr error
	events, err := gen.LLM.Chat(turnCtx, args)
	switch {
	case err != nil:
		turnErr = err
	case events == nil:
		turnErr = errNoEventStream
	default:
		turnErr = r.consume(turnCtx, index, events, runner, toolCalling)
	}
	if turnErr != nil {
		// Stop in-flight tools; they settle as errors.
		cancelTurn()
	}
	calls := runner.wait()

	iter := domain.ChatIteration{Index: index, ToolCalls: calls}
	gen.Iterations = append(gen.Iterations, iter)
	r.appendToPrompt(firstNode, calls)
	r.g.deps.Metrics.RecordIteration(ctx, gen.LLM.ID())
	r.g.publishIteration(ctx, domain.EventIterationCompleted, r, index, len(calls))

	switch {
	case ctx.Err() != nil:
		err := abortError(ctx.Err())
		tracer.RecordError(span, err)
		return iter, err
	case turnErr != nil:
		err := fmt.Errorf("%w: %w: llm %q: %w", domain.ErrGenerationAborted, domain.ErrProviderError, gen.LLM.ID(), turnErr)
		tracer.RecordError(span, err)
		return iter, err
	}
	tracer.SetOK(span)
	return iter, nil
}

// consume applies the adapter's events in order until the stream closes.
func (r *generationRun) consume(ctx context.Context, index int, events <-chan domain.LLMEvent, runner *toolRunner, toolCalling bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case domain.TextDelta:
				r.message.AppendText(e.Text)
				domain.PublishEvent(ctx, r.g.deps.Bus, domain.EventTextDelta, r.gen.ChatID, domain.TextDeltaPayload{
					MessageID: r.message.ID(),
					Iteration: index,
					Text:      e.Text,
				})
			case domain.ToolCallRequest:
				runner.submit(e, toolCalling)
			case domain.StreamError:
				if e.Err == nil {
					return errors.New("llm stream failed")
				}
				return e.Err
			case nil:
				r.logger.Warn("llm emitted nil event")
			default:
				r.logger.Warn("llm emitted unknown event", "type", fmt.Sprintf("%T", ev))
			}
		}
	}
}

// appendToPrompt feeds this iteration's assistant text and settled tool calls
// back into the prompt for the next iteration.
func (r *generationRun) appendToPrompt(firstNode int, calls []domain.SettledToolCall) {
	nodes := r.message.Nodes()
	firstNode = min(firstNode, len(nodes))

	var msgs []domain.PromptMessage
	if text := renderForPrompt(nodes[firstNode:], r.prompt.filter); text != "" {
		msgs = append(msgs, domain.TextPromptMessage{Role: domain.PromptAssistant, Content: text})
	}
	for _, c := range calls {
		msgs = append(msgs, domain.ToolPromptFromCall(c))
	}
	r.prompt.AppendMessage(msgs...)
}

// persist stores the assistant message, partial or not. Empty messages are skipped.
func (r *generationRun) persist(ctx context.Context) error {
	if r.message.Len() == 0 {
		r.logger.Debug("empty assistant message not persisted")
		return nil
	}
	msg := r.message.Message(r.gen.ChatID)
	if err := r.g.deps.Chats.AppendMessage(ctx, msg); err != nil {
		r.logger.Error("persist assistant message failed", "error", err)
		return domain.WrapOp("Generator.persist", err)
	}
	domain.PublishEvent(ctx, r.g.deps.Bus, domain.EventMessageSaved, r.gen.ChatID, map[string]string{"message_id": msg.ID})
	return nil
}

// errNoEventStream reports an adapter that returned neither a stream nor an error.
var errNoEventStream = errors.New("chat returned no event stream")

func abortError(cause error) error {
	return fmt.Errorf("%w: %w", domain.ErrGenerationAborted, cause)
}

func (g *Generator) publish(ctx context.Context, typ domain.EventType, run *generationRun, runErr error) {
	p := domain.GenerationPayload{
		MessageID:  run.message.ID(),
		LLM:        run.gen.LLM.ID(),
		Iterations: len(run.gen.Iterations),
	}
	if runErr != nil {
		p.Error = runErr.Error()
	}
	domain.PublishEvent(ctx, g.deps.Bus, typ, run.gen.ChatID, p)
}

func (g *Generator) publishIteration(ctx context.Context, typ domain.EventType, run *generationRun, index, toolCalls int) {
	domain.PublishEvent(ctx, g.deps.Bus, typ, run.gen.ChatID, map[string]any{
		"message_id": run.message.ID(),
		"iteration":  index,
		"tool_calls": toolCalls,
	})
}
