// Package taskqueue is a bounded worker pool that dispatches typed
// tasks to registered handlers, up to W concurrently, and notifies
// subscribers of task completion and in-flight progress messages
// (spec section 4.5).
package taskqueue
