package pipeline

// ExtractError wraps a per-file extraction failure (unparseable markup or a
// path outside the root) so callers can skip the file and carry on.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string { return "extract " + e.Path + ": " + e.Err.Error() }
func (e *ExtractError) Unwrap() error { return e.Err }

// RunStatus summarises one ingest run.
type RunStatus struct {
	RunID    string
	Total    int
	Indexed  int
	Skipped  int
	Failed   int
	Deleted  int
	Failures []string
}
