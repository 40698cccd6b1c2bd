package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/google/uuid"
	"github.com/idris/kestrel/internal/observability"
	"github.com/idris/kestrel/pkg/provider"
	"github.com/idris/kestrel/pkg/safety"
	"github.com/idris/kestrel/pkg/tools"
	"github.com/rs/zerolog"
)

// Completer is the completion surface the orchestrator depends on. The
// router satisfies it; tests substitute scripted fakes.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) *provider.CompletionResponse
}

// ToolRegistry is the tool-execution collaborator. A failing tool surfaces
// as Success=false; the registry never panics past this contract.
type ToolRegistry interface {
	Schemas() []tools.Schema
	ExecuteByName(ctx context.Context, name string, params map[string]any, timeout time.Duration) tools.Result
}

// maxConversationMessages bounds the conversation before compaction kicks
// in: the system turn plus the most recent turns survive, older turns are
// discarded.
const maxConversationMessages = 40

// Orchestrator runs bounded think/act/observe loops against the completion
// router and the tool registry.
type Orchestrator struct {
	router   Completer
	registry ToolRegistry
	logger   zerolog.Logger

	runs *activeRuns
}

// Options configures an Orchestrator.
type Options struct {
	Router            Completer
	Registry          ToolRegistry
	Logger            zerolog.Logger
	MaxConcurrentRuns int
}

const defaultMaxConcurrentRuns = 5

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if opts.Router == nil {
		return nil, fmt.Errorf("completion router is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	maxConcurrent := opts.MaxConcurrentRuns
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentRuns
	}

	return &Orchestrator{
		router:   opts.Router,
		registry: opts.Registry,
		logger:   opts.Logger,
		runs:     newActiveRuns(maxConcurrent),
	}, nil
}

// Cancel flips the cancellation flag of an active run. The flag is checked
// at the top of each loop iteration, so cancellation lands at the next
// iteration boundary, never mid-step. Returns true if a matching active
// run existed.
func (o *Orchestrator) Cancel(runID string) bool {
	return o.runs.cancel(runID)
}

// ListActive returns the ids of currently active runs.
func (o *Orchestrator) ListActive() []string {
	return o.runs.list()
}

// Run executes the agent loop for a goal. It returns an error only for
// synchronous rejection (empty goal, concurrency ceiling); once a run is
// admitted it always resolves to a terminal Run, whatever happens inside
// the loop.
func (o *Orchestrator) Run(ctx context.Context, goal string, overrides *ConfigOverrides, cbs *Callbacks) (result *Run, err error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("goal cannot be empty")
	}

	cfg := SanitizeConfig(overrides)
	run := &Run{
		ID:        uuid.NewString(),
		Goal:      goal,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	if err := o.runs.register(run.ID); err != nil {
		return nil, err
	}
	// Unconditional removal: a leaked entry would permanently consume one
	// of the limited concurrency slots.
	defer o.runs.unregister(run.ID)

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error().
				Str("run_id", run.ID).
				Interface("panic", rec).
				Msg("Agent loop panicked")
			if !run.Status.Terminal() {
				o.finish(run, StatusFailed, fmt.Sprintf("unexpected error: %v", rec), cbs)
			}
			result, err = run, nil
		}
	}()

	o.logger.Info().
		Str("run_id", run.ID).
		Int("max_steps", cfg.MaxSteps).
		Msg("Agent run started")

	o.execute(ctx, run, cfg, cbs)
	return run, nil
}

// execute drives the loop to a terminal state. It calls finish exactly
// once on every path.
func (o *Orchestrator) execute(ctx context.Context, run *Run, cfg RunConfig, cbs *Callbacks) {
	schemas := o.filteredSchemas(cfg)
	advertised := make([]string, 0, len(schemas))
	for _, s := range schemas {
		advertised = append(advertised, s.Name)
	}

	conversation := make([]provider.Message, 0, len(cfg.History)+2)
	conversation = append(conversation, provider.Message{Role: "system", Content: buildSystemPrompt(schemas)})
	// Seed sanitized prior turns so a caller can continue a conversation.
	for _, msg := range cfg.History {
		conversation = append(conversation, provider.Message{Role: msg.Role, Content: msg.Content})
	}
	conversation = append(conversation, provider.Message{Role: "user", Content: run.Goal})

	for len(run.Steps) < cfg.MaxSteps {
		if o.runs.isCancelled(run.ID) {
			o.finish(run, StatusCancelled, "run cancelled", cbs)
			return
		}
		if time.Since(run.StartedAt) > cfg.TotalTimeout {
			o.finish(run, StatusFailed, fmt.Sprintf("run exceeded total timeout of %v", cfg.TotalTimeout), cbs)
			return
		}

		stepStart := time.Now()
		resp := o.router.Complete(ctx, provider.CompletionRequest{
			Messages:    conversation,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokensPerStep,
		})
		if resp == nil || resp.FinishReason == provider.FinishError || strings.TrimSpace(resp.Content) == "" {
			msg := "model returned no content"
			if resp != nil && resp.Content != "" {
				msg = resp.Content
			}
			o.finish(run, StatusFailed, msg, cbs)
			return
		}
		if run.Provider == "" {
			run.Provider = resp.Provider
			run.Model = resp.Model
		}

		parsed, ok := parseResponse(resp.Content)
		if !ok {
			// Protocol deviation: degrade to treating the raw text as
			// the final answer rather than aborting the run.
			o.recordStep(run, cbs, "answer", Step{
				Thought:   resp.Content,
				Timestamp: stepStart,
				Duration:  time.Since(stepStart),
			})
			run.Result = resp.Content
			o.finish(run, StatusCompleted, "", cbs)
			return
		}

		if parsed.IsAnswer() {
			o.recordStep(run, cbs, "answer", Step{
				Thought:   parsed.Thought,
				Timestamp: stepStart,
				Duration:  time.Since(stepStart),
			})
			run.Result = *parsed.Answer
			// Raw assistant turn stays in history for audit.
			conversation = append(conversation, provider.Message{Role: "assistant", Content: resp.Content})
			o.finish(run, StatusCompleted, "", cbs)
			return
		}

		toolName := *parsed.Tool

		if !safety.ValidToolCall(toolName, advertised) {
			observation := fmt.Sprintf("tool %q is not available for this run", toolName)
			o.recordStep(run, cbs, "error", Step{
				Thought:     parsed.Thought,
				Tool:        toolName,
				Params:      parsed.Params,
				Observation: observation,
				Timestamp:   stepStart,
				Duration:    time.Since(stepStart),
			})
			conversation = append(conversation,
				provider.Message{Role: "assistant", Content: resp.Content},
				provider.Message{Role: "user", Content: toolErrorTurn(observation)},
			)
			conversation = compactConversation(conversation)
			continue
		}

		if cfg.ConfirmDestructive && tierOf(schemas, toolName).RequiresConfirmation() {
			if !cbs.confirm(toolName, parsed.Params) {
				observation := "declined by user"
				o.recordStep(run, cbs, "error", Step{
					Thought:     parsed.Thought,
					Tool:        toolName,
					Params:      parsed.Params,
					Observation: observation,
					Timestamp:   stepStart,
					Duration:    time.Since(stepStart),
				})
				conversation = append(conversation,
					provider.Message{Role: "assistant", Content: resp.Content},
					provider.Message{Role: "user", Content: declinedTurn(toolName)},
				)
				conversation = compactConversation(conversation)
				continue
			}
		}

		cbs.toolCall(toolName, parsed.Params)
		toolResult := o.registry.ExecuteByName(ctx, toolName, parsed.Params, cfg.ToolTimeout)
		cbs.toolResult(toolName, toolResult)

		observation := toolResult.Output
		if !toolResult.Success {
			observation = toolResult.Error
			if observation == "" {
				observation = "tool failed without an error message"
			}
		}
		observation = safety.SanitizeToolOutput(observation)

		o.recordStep(run, cbs, "tool", Step{
			Thought:     parsed.Thought,
			Tool:        toolName,
			Params:      parsed.Params,
			Observation: observation,
			Timestamp:   stepStart,
			Duration:    time.Since(stepStart),
		})
		run.ToolsUsed = appendUnique(run.ToolsUsed, toolName)

		conversation = append(conversation,
			provider.Message{Role: "assistant", Content: resp.Content},
			provider.Message{Role: "user", Content: toolResultTurn(toolName, observation)},
		)
		conversation = compactConversation(conversation)
	}

	// Step budget exhausted: one final best-effort summary request. This
	// call deliberately skips the total-timeout check so a run that spent
	// its whole budget on tools still reports what it learned.
	summary := o.router.Complete(ctx, provider.CompletionRequest{
		Messages: append(conversation, provider.Message{
			Role:    "user",
			Content: "You have reached the step limit. Summarize your progress toward the goal and any partial results in plain text.",
		}),
		Temperature: cfg.Temperature,
	})

	run.Result = "reached maximum steps without a final answer"
	if summary != nil && summary.FinishReason != provider.FinishError && strings.TrimSpace(summary.Content) != "" {
		run.Result = summary.Content
	}
	o.finish(run, StatusMaxSteps, "", cbs)
}

// filteredSchemas computes the tool schemas advertised for a run: the full
// registry list intersected with the allow-list when non-empty, minus the
// deny-list. Both lists match by exact name or prefix.
func (o *Orchestrator) filteredSchemas(cfg RunConfig) []tools.Schema {
	all := o.registry.Schemas()
	out := make([]tools.Schema, 0, len(all))
	for _, schema := range all {
		if len(cfg.AllowTools) > 0 && !safety.MatchesPrefixList(schema.Name, cfg.AllowTools) {
			continue
		}
		if safety.MatchesPrefixList(schema.Name, cfg.DenyTools) {
			continue
		}
		if schema.Tier == tools.TierBlocked {
			continue
		}
		out = append(out, schema)
	}
	return out
}

func (o *Orchestrator) recordStep(run *Run, cbs *Callbacks, kind string, step Step) {
	step.Index = len(run.Steps)
	step.ID = gonanoid.Must(12)
	run.Steps = append(run.Steps, step)
	observability.RecordStep(kind)
	cbs.step(step)
}

func (o *Orchestrator) finish(run *Run, status Status, errMsg string, cbs *Callbacks) {
	run.Status = status
	run.Error = errMsg
	run.CompletedAt = time.Now()
	run.Duration = run.CompletedAt.Sub(run.StartedAt)

	observability.RecordRun(string(status), run.Duration)
	o.logger.Info().
		Str("run_id", run.ID).
		Str("status", string(status)).
		Int("steps", len(run.Steps)).
		Dur("duration", run.Duration).
		Msg("Agent run finished")

	if status == StatusFailed && errMsg != "" {
		cbs.failed(fmt.Errorf("%s", errMsg))
	}
	cbs.complete(run)
}

// compactConversation bounds memory and token cost on long runs: above the
// message ceiling, the system turn plus the most recent turns survive.
func compactConversation(msgs []provider.Message) []provider.Message {
	if len(msgs) <= maxConversationMessages {
		return msgs
	}
	out := make([]provider.Message, 0, maxConversationMessages)
	out = append(out, msgs[0])
	out = append(out, msgs[len(msgs)-(maxConversationMessages-1):]...)
	return out
}

func tierOf(schemas []tools.Schema, name string) tools.Tier {
	for _, s := range schemas {
		if s.Name == name {
			return s.Tier
		}
	}
	return tools.TierReadOnly
}

func appendUnique(list []string, name string) []string {
	for _, v := range list {
		if v == name {
			return list
		}
	}
	return append(list, name)
}
