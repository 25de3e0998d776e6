// Package config defines the format-agnostic model of a convention spec and
// the Loader interface implemented by the format adapters.
//
// A config.Spec is what a spec file says, nothing more: validator
// references, default tokens and target methods are kept as written. The
// compiler package resolves them. Concrete loaders for YAML/JSON and HCL
// live in separate packages.
package config
