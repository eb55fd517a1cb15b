package out

import "context"

// =============================================================================
// LLM Port
// =============================================================================

// LLMClient defines the outbound port for the chat model. Implementations
// enforce the process-wide concurrency semaphore and per-minute budget; every
// call carries a caller tag for usage logging.
type LLMClient interface {
	Complete(ctx context.Context, caller, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, caller, system, prompt string) (string, error)

	// CompleteJSON forces a JSON object response and unmarshals into out.
	CompleteJSON(ctx context.Context, caller, system, prompt string, out any) error
}
