package batch

import "math"

// Run is the bookkeeping of one signing run. It is created when a run starts
// and threaded through every phase.
type Run struct {
	// Total is the number of PDFs expected: loose files plus the pre-count of
	// the archive.
	Total int
	// Processed counts attempts, successful or not, across all phases.
	Processed int

	failed []string
}

// NewRun returns an empty run.
func NewRun() *Run {
	return &Run{failed: []string{}}
}

// Fail records a file that could not be signed.
func (r *Run) Fail(name string) {
	r.failed = append(r.failed, name)
}

// Advance counts one more processed file and returns the new count.
func (r *Run) Advance() int {
	r.Processed++
	return r.Processed
}

// FailedFiles returns a copy of the failed file names in processing order.
func (r *Run) FailedFiles() []string {
	return append([]string{}, r.failed...)
}

// percent rounds 100*done/total half away from zero. An empty total counts
// as complete.
func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
