// Package app is the process-wide context object of the attribute engine.
// It owns the configuration, the logger, the validator library, the
// convention registry, the compiler, the activation manager and the
// validation pipeline, and documents their initialisation and teardown:
// New compiles the configured specs and activates the configured
// convention; Close stops the spec watcher.
package app
