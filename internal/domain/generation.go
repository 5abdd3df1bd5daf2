package domain

// GenerationState is the orchestrator state of a ChatGeneration.
type GenerationState string

const (
	GenerationPreparing  GenerationState = "preparing"
	GenerationIterating  GenerationState = "iterating"
	GenerationFinalizing GenerationState = "finalizing"
	GenerationDone       GenerationState = "done"
	GenerationAborted    GenerationState = "aborted"
)

// ChatIteration records one settled pass of the generation loop.
type ChatIteration struct {
	Index     int
	ToolCalls []SettledToolCall
}

// GenerationContext is the key-value store plugins share during one generation.
// Keys are (owner, name) pairs; any plugin may read any owner's keys.
type GenerationContext interface {
	Get(owner, name string) (any, bool)
	Set(owner, name string, value any)
	Delete(owner, name string)
	// Keys lists the names set by owner.
	Keys(owner string) []string
}

// ChatGeneration is one assistant turn, passed to every generation hook.
// Hooks run one at a time, so they may mutate Prompt, AssistantMessage and
// Context freely. The remaining fields are owned by the orchestrator.
type ChatGeneration struct {
	ChatID           string
	LLM              LLM
	Prompt           PromptBuilder
	AssistantMessage MessageBuilder
	Context          GenerationContext

	Iteration        int
	IsFinalIteration bool
	Iterations       []ChatIteration
	State            GenerationState
	// Err is the abort cause when State is GenerationAborted.
	Err error
}

// LastIteration returns the most recently recorded iteration.
func (g *ChatGeneration) LastIteration() (ChatIteration, bool) {
	if len(g.Iterations) == 0 {
		return ChatIteration{}, false
	}
	return g.Iterations[len(g.Iterations)-1], true
}
