// Package domain holds the issue tracker entities the notification pipeline
// reads, and the lookup interfaces it consumes from the persistence layer.
// Lookups return (nil, nil) for ordinary absence; an error means the lookup
// itself failed.
package domain
