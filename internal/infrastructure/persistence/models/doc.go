// Package models contains GORM persistence models for the local sqlite store.
// They are kept apart from the domain types so the domain stays free of ORM tags,
// and each model carries its own mapping to and from the domain.
package models
