// Package convention holds the attribute registry: AttributeSpec, the
// Convention that indexes them per container kind and creation operation,
// the process-wide Registry of compiled conventions, and the error types
// shared by the compiler, the activation manager and the pipeline.
//
// A Convention is mutated only through Add, which enforces name uniqueness
// per container kind and requires every named requirement to be registered
// first. Variants are derived with Pop, which returns an independent deep
// copy. Validate audits a whole container tree and never fails; it returns
// a Report listing every violation.
//
// Containers are reached through the Node and AttributeStore interfaces,
// which are implemented by the code that owns the actual storage.
package convention
