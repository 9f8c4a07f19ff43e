// Package core defines the shared domain types for the marketpivot
// transformation engine: the wide raw record shape, the long (tidy)
// observation shape, the watermark cursor, and the error taxonomy used
// across the watermark store, selector, reshaper, and coordinator.
//
// The package has no dependencies on storage or transport so that both
// the engine and external tools can share these types.
package core
