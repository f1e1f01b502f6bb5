// Package specification holds composable query predicates. Repositories
// accept them variadically so call sites state filters declaratively
// instead of threading raw gorm clauses around.
package specification

import "gorm.io/gorm"

// Specification is one composable query predicate
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
