// Package records defines the ERP entities the client caches and mutates offline.
// Each type implements offline.Record so it can be registered with the sync engine.
package records
