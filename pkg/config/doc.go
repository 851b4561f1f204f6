// Package config loads shardkeepd's YAML configuration (spec section
// 6.5 plus the logging, metrics, storage-backend, and task queue
// options the daemon needs around the core) and turns it into
// ready-to-use pkg/storage, pkg/collection, and pkg/taskqueue values.
package config
