// Package task provides the asynchronous tool-invocation queue.
//
// progress.go - tool-side progress reporting
//
// The queue attaches a reporter to the invocation context; tools that
// can estimate their own progress call ReportProgress with it. Tools
// that cannot simply never call it and the task's progress stays 0
// until completion.

package task

import "context"

type progressKey struct{}

// ProgressFunc receives best-effort 0-100 progress updates
type ProgressFunc func(pct int)

// WithProgressReporter returns a context carrying a progress reporter
func WithProgressReporter(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress forwards pct to the context's progress reporter, if
// one is attached. Safe to call from any goroutine.
func ReportProgress(ctx context.Context, pct int) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(pct)
	}
}
