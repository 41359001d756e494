package sequence

// Body is the external contract the engine requires for imperative and
// judgement sequences (spec.md §4.4.5/§6.2). The engine is agnostic to how a
// Body implements these; it must be deterministic-given-inputs from the
// engine's perspective — retries of an unreliable underlying tool are the
// Body's own concern, not the orchestrator's (beyond the single bounded
// retry-on-BodyError the engine offers, see retry.go).
type Body interface {
	// CallParadigm invokes paradigmID with inputs and returns a
	// JSON-serializable result (spec.md §6.2).
	CallParadigm(paradigmID string, inputs map[string]any) (any, error)
	// ReadFile returns path's content.
	ReadFile(path string) (string, error)
	// WriteFile persists content to path.
	WriteFile(path string, content string) error
	// ReadMemorized returns a previously stored value for key.
	ReadMemorized(key string) (any, error)
}

// BodyError wraps a failure raised by a Body call. Retriable marks the
// failure as eligible for the engine's single bounded retry (spec.md §7):
// tva sets it from a paradigm step's "retriable" input or keeps it from a
// BodyError the Body itself returned, and the imperative handler also
// retries any BodyError when working_interpretation.retriable is true.
type BodyError struct {
	Paradigm  string
	Err       error
	Retriable bool
}

func (e *BodyError) Error() string {
	return "body error calling paradigm " + e.Paradigm + ": " + e.Err.Error()
}

func (e *BodyError) Unwrap() error { return e.Err }
