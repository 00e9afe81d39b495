package database

import (
	"github.com/huandu/go-sqlbuilder"
)

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

// Ints converts typed keys into the variadic form sqlbuilder's In expects.
func Ints[T ~int](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
