package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"limbo/internal/domain"
	"limbo/internal/infra/tracer"
)

// ToolCatalog resolves tools for the generation loop.
type ToolCatalog interface {
	Get(id string) (domain.Tool, bool)
	Definitions() []domain.ToolDefinition
}

// toolRunner executes the tool calls requested during one iteration.
// Calls run concurrently; wait is the iteration barrier.
type toolRunner struct {
	ctx       context.Context // cancelled on abort or adapter failure
	run       *generationRun
	iteration int
	group     errgroup.Group

	mu    sync.Mutex
	calls []domain.SettledToolCall // indexed by request order
}

func newToolRunner(ctx context.Context, run *generationRun, iteration int) *toolRunner {
	r := &toolRunner{ctx: ctx, run: run, iteration: iteration}
	if n := run.g.deps.MaxParallelTools; n > 0 {
		r.group.SetLimit(n)
	}
	return r
}

// submit records a pending call on the assistant message and schedules it.
// Every submitted call is settled exactly once before wait returns.
func (r *toolRunner) submit(req domain.ToolCallRequest, toolCalling bool) {
	call := domain.NewPendingToolCall(req.ToolID, req.Arguments)

	r.mu.Lock()
	idx := len(r.calls)
	r.calls = append(r.calls, nil)
	r.mu.Unlock()

	r.run.message.AppendNode(domain.ToolCallNode{Call: call})
	r.publish(domain.EventToolCallPending, call)

	if !toolCalling {
		r.settle(idx, call.FailWith(fmt.Errorf("llm %q does not support tool calling", r.run.gen.LLM.ID())))
		return
	}
	tool, ok := r.run.g.deps.Tools.Get(req.ToolID)
	if !ok {
		r.settle(idx, call.FailWith(fmt.Errorf("tool %q is not registered", req.ToolID)))
		return
	}

	r.group.Go(func() error {
		r.settle(idx, r.execute(tool, call))
		return nil
	})
}

// wait blocks until every submitted call has settled.
func (r *toolRunner) wait() []domain.SettledToolCall {
	_ = r.group.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SettledToolCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *toolRunner) execute(tool domain.Tool, call domain.PendingToolCall) domain.SettledToolCall {
	ctx, span := tracer.StartSpan(r.ctx, "tool.execute",
		trace.WithAttributes(
			tracer.StringAttr("tool.id", call.ToolID),
			tracer.StringAttr("tool.call_id", call.ID),
		),
	)
	defer span.End()

	if err := r.ctx.Err(); err != nil {
		return call.FailWith(fmt.Errorf("tool call aborted before start: %w", err))
	}

	if timeout := r.run.g.deps.ToolTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := safeExecute(ctx, tool, domain.ToolExecuteArgs{Call: call, AssistantMessage: r.run.message})
	switch {
	case r.ctx.Err() != nil:
		err = fmt.Errorf("tool call aborted: %w", r.ctx.Err())
	case err == nil && ctx.Err() != nil:
		err = fmt.Errorf("tool call timed out: %w", ctx.Err())
	}

	if err != nil {
		tracer.RecordError(span, err)
		r.run.logger.Warn("tool call failed",
			"tool", call.ToolID,
			"call_id", call.ID,
			"duration", time.Since(start),
			"error", err,
		)
		return call.FailWith(err)
	}
	tracer.SetOK(span)
	r.run.logger.Debug("tool call succeeded", "tool", call.ToolID, "call_id", call.ID, "duration", time.Since(start))
	return call.Succeed(result)
}

// safeExecute converts a panicking tool into an error.
func safeExecute(ctx context.Context, tool domain.Tool, args domain.ToolExecuteArgs) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool.ID(), rec)
		}
	}()
	return tool.Execute(ctx, args)
}

func (r *toolRunner) settle(idx int, settled domain.SettledToolCall) {
	r.mu.Lock()
	if r.calls[idx] != nil {
		r.mu.Unlock()
		r.run.logger.Error("tool call settled twice",
			"call_id", settled.Base().ID,
			"error", domain.ErrInvalidTransition,
		)
		return
	}
	r.calls[idx] = settled
	r.mu.Unlock()

	if !r.run.message.ReplaceToolCall(settled) {
		r.run.logger.Debug("tool call node no longer in assistant message", "call_id", settled.Base().ID)
	}
	r.run.g.deps.Metrics.RecordToolCall(r.ctx, settled.Base().ToolID, string(settled.Status()))
	r.publish(domain.EventToolCallSettled, settled)
}

func (r *toolRunner) publish(typ domain.EventType, call domain.ToolCall) {
	base := call.Base()
	p := domain.ToolCallPayload{
		MessageID: r.run.message.ID(),
		Iteration: r.iteration,
		CallID:    base.ID,
		ToolID:    base.ToolID,
		Status:    call.Status(),
		Arguments: base.Arguments,
	}
	switch c := call.(type) {
	case domain.SuccessToolCall:
		p.Result = c.Result
	case domain.ErrorToolCall:
		p.Error = c.Message()
	}
	domain.PublishEvent(context.WithoutCancel(r.ctx), r.run.g.deps.Bus, typ, r.run.gen.ChatID, p)
}
