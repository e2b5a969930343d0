// Package tables registers the entity normalizers with the core registry.
// Import this package to ensure all normalizers are registered.
package tables

// This file exists to provide a single import point.
// Each entity file uses init() to register its normalizer.
