// Package application holds the use cases that tie the feed sources, the
// finance engine, snapshot history and event publishing together.
package application
