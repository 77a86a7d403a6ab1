package batch

// Disposition is the monitor's classification of a job's current status.
type Disposition int

// Classification outcomes for a polled status.
const (
	// ContinueWaiting means the job has not reached a terminal state and
	// stays in the registry.
	ContinueWaiting Disposition = iota
	// TerminalSuccess means the job finished and produced a result file.
	TerminalSuccess
	// TerminalFailure means the job reached a terminal state without a
	// usable result (failed, cancelled, cancelling, or expired).
	TerminalFailure
)

// String returns the disposition name for logs and metric labels.
func (d Disposition) String() string {
	switch d {
	case TerminalSuccess:
		return "terminal_success"
	case TerminalFailure:
		return "terminal_failure"
	default:
		return "continue_waiting"
	}
}

// Classify maps a raw provider status to a Disposition. The second return
// value reports whether the status is one of the published sets; for
// out-of-set values Classify falls back to ContinueWaiting so an unknown
// (possibly new) provider status never silently discards a job. Callers are
// expected to log that fallback.
func Classify(s Status) (Disposition, bool) {
	switch s {
	case StatusValidating, StatusInProgress, StatusFinalizing:
		return ContinueWaiting, true
	case StatusCompleted:
		return TerminalSuccess, true
	case StatusFailed, StatusCancelled, StatusCancelling, StatusExpired:
		return TerminalFailure, true
	default:
		return ContinueWaiting, false
	}
}
