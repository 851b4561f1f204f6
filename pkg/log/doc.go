/*
Package log provides structured logging for the document store using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("collection")              │          │
	│  │  - WithCollection("users")                  │          │
	│  │  - WithShard("shard-04")                    │          │
	│  │  - WithTaskID("task-def456")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "collection",               │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "record inserted"             │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF record inserted component=collection │     │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all store packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithCollection: Add collection name context
  - WithShard: Add shard id context
  - WithTaskID: Add queued task id context

# Usage

Initializing the Logger:

	import "github.com/shardkeep/shardkeep/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("database opened")
	log.Debug("checking shard cache")
	log.Warn("shard cache near capacity")
	log.Error("failed to flush shard")

Component Loggers:

	collLog := log.WithComponent("collection").With().Str("collection", "users").Logger()
	collLog.Info().Msg("insertOne")

	shardLog := log.WithShard("7f3a")
	shardLog.Debug().Int("records", 412).Msg("shard loaded from storage")

# Integration Points

This package integrates with:

  - pkg/collection: Logs corrupt or stale tree files and flush failures
  - pkg/database: Logs database tree rebuilds and flush failures
  - pkg/taskqueue: Logs task start, completion, and failure
  - pkg/scheduler: Logs compaction passes and their failures
  - cmd/shardkeepd: Logs serve startup and shutdown

pkg/shard and pkg/storage do not log.

# Security

Log Content:
  - Never log record field values; log ids and counts only
  - Redact encryption keys, credentials, and S3 secrets
  - Use structured fields (.Str, .Int) instead of string concatenation
*/
package log
