package batch

import (
	"context"
	"fmt"
)

// Provider is the external collaborator that executes batch jobs. All calls
// block on network I/O and honor context cancellation; timeouts are the
// implementation's responsibility.
type Provider interface {
	// Submit uploads the input file and creates a batch job, returning the
	// provider-assigned job ID. Failures wrap SubmissionError.
	Submit(ctx context.Context, inputPath, description string) (JobID, error)

	// CheckStatus fetches the current snapshot for a job. Failures wrap
	// TransientError (timeout, connection, rate limit) or ProviderError
	// (semantic 4xx/5xx).
	CheckStatus(ctx context.Context, id JobID) (StatusSnapshot, error)

	// RetrieveResult downloads the content of a provider-side file.
	// Failures wrap RetrievalError.
	RetrieveResult(ctx context.Context, ref ResultRef) ([]byte, error)

	// UploadInput uploads a file for later batch creation and returns its
	// provider-side reference.
	UploadInput(ctx context.Context, path string) (ResultRef, error)
}

// SubmissionError reports a failed job submission. It is surfaced to the
// submitting caller as-is; this layer does not retry.
type SubmissionError struct {
	Path string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit batch job for %s: %v", e.Path, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientError reports a failure that is expected to clear on its own:
// timeouts, connection resets, rate limits. The monitor keeps the job and
// retries on the next tick.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient provider failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProviderError reports a semantic provider rejection (4xx/5xx other than
// rate limiting).
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// RetrievalError reports a failure downloading a result file.
type RetrievalError struct {
	Ref ResultRef
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve result %s: %v", e.Ref, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
