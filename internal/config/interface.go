package config

import "context"

// Loader is the interface for a format-specific spec loader.
type Loader interface {
	// Load reads the spec at path and translates it into the model.
	Load(ctx context.Context, path string) (*Spec, error)
	// Parse translates in-memory spec source. source labels the input in
	// error messages.
	Parse(ctx context.Context, source string, src []byte) (*Spec, error)
	// Extensions lists the file extensions the loader handles, with the
	// leading dot.
	Extensions() []string
}
