// Package spider turns one seed request into a stream of items.
//
// A crawl starts from a single Callback: a request, the Handler that will
// interpret its response, and a caller-defined context value C. Handlers
// yield Outcomes, each either a finished item of type I or a follow-up
// Callback. Items are pushed to the run's unbounded item stream; follow-ups go
// back into a bounded task queue that is drained by at most
// ConcurrentRequests concurrent executions.
//
// A producer that finds the task queue full waits for space without holding
// an execution slot, so a burst of discovered work throttles the handler
// instead of growing memory or stalling the run. The run completes, and the
// item stream closes, once no callback is queued or executing.
//
// Failures are local to one execution. A transport error, or an item or
// follow-up that cannot be delivered, ends that execution and is reported
// through the logger and Run.Stats; it never appears on the item stream.
package spider
