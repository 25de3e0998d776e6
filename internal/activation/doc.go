// Package activation swaps the single process-wide active convention.
//
// Each creation operation owns a parameter Surface: the base parameters its
// collaborator registers, followed by one injected parameter per attribute
// of the active convention. Callers pass an Args bag that is bound against
// the live surface before the operation runs.
//
// Activations are serialised by one mutex. The resulting state (active
// convention, surfaces, decoder chain) is published as an immutable snapshot
// so that readers never block on an activation and never observe a half
// applied one.
package activation
