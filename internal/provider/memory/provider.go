// Package memory implements a scriptable in-process provider for local
// development and tests. Submitted jobs walk a configurable status sequence,
// one step per status check, so a full submit-poll-complete cycle can run
// without network access.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/batchops/batchwatch/internal/batch"
)

// Provider simulates the remote batch service in memory.
type Provider struct {
	mu       sync.Mutex
	sequence []batch.Status
	jobs     map[batch.JobID]*jobState
	results  map[batch.ResultRef][]byte
}

type jobState struct {
	step      int
	outputRef batch.ResultRef
}

// New returns a Provider whose jobs advance through sequence, holding at the
// final status. An empty sequence defaults to validating → in_progress →
// completed.
func New(sequence ...batch.Status) *Provider {
	if len(sequence) == 0 {
		sequence = []batch.Status{
			batch.StatusValidating,
			batch.StatusInProgress,
			batch.StatusCompleted,
		}
	}
	return &Provider{
		sequence: sequence,
		jobs:     make(map[batch.JobID]*jobState),
		results:  make(map[batch.ResultRef][]byte),
	}
}

// Submit assigns a fresh job ID and seeds a canned result file.
func (p *Provider) Submit(_ context.Context, inputPath, _ string) (batch.JobID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := batch.JobID("batch-" + uuid.NewString())
	ref := batch.ResultRef("file-" + uuid.NewString())
	p.jobs[id] = &jobState{outputRef: ref}
	p.results[ref] = []byte(fmt.Sprintf("{\"input\":%q}\n", inputPath))
	return id, nil
}

// CheckStatus returns the job's current status and advances it one step.
func (p *Provider) CheckStatus(_ context.Context, id batch.JobID) (batch.StatusSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.jobs[id]
	if !ok {
		return batch.StatusSnapshot{}, &batch.ProviderError{
			Op:         "check status",
			StatusCode: 404,
			Message:    fmt.Sprintf("no such batch %s", id),
		}
	}
	status := p.sequence[state.step]
	if state.step < len(p.sequence)-1 {
		state.step++
	}
	snap := batch.StatusSnapshot{ID: id, Status: status}
	if status == batch.StatusCompleted {
		snap.OutputRef = state.outputRef
	}
	return snap, nil
}

// RetrieveResult returns the canned result content for ref.
func (p *Provider) RetrieveResult(_ context.Context, ref batch.ResultRef) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	content, ok := p.results[ref]
	if !ok {
		return nil, &batch.RetrievalError{Ref: ref, Err: fmt.Errorf("no such file")}
	}
	return append([]byte(nil), content...), nil
}

// UploadInput returns a fresh file reference without storing anything.
func (p *Provider) UploadInput(context.Context, string) (batch.ResultRef, error) {
	return batch.ResultRef("file-" + uuid.NewString()), nil
}
