// Package inmemorystore provides a thread-safe, in-memory implementation
// of the convention.AttributeStore interface. It backs the reference
// container tree and any container whose attributes need not be persisted.
package inmemorystore
