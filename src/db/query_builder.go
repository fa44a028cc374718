package db

import (
	"fmt"
	"strings"
)

/*
QueryBuilder accumulates a SQL query chunk by chunk, which is how the fetch
helpers compose optional filters. Write `$?` for each argument in a chunk;
the builder assigns the real `$n` placeholder numbers across chunks so the
caller never has to track them.

	var qb QueryBuilder
	qb.Add(`SELECT ... FROM post WHERE TRUE`)
	if len(q.GroupIDs) > 0 {
		qb.Add(`AND group_id = ANY ($?)`, q.GroupIDs)
	}
	conn.Query(ctx, qb.String(), qb.Args()...)

The zero value is ready to use.
*/
type QueryBuilder struct {
	sql  strings.Builder
	args []interface{}
}

// Appends one chunk. Panics if the number of `$?` placeholders in the chunk
// does not match the number of arguments; that is always a bug at the call
// site, not a runtime condition.
func (qb *QueryBuilder) Add(sql string, args ...interface{}) {
	numPlaceholders := strings.Count(sql, "$?")
	if numPlaceholders != len(args) {
		panic(fmt.Errorf("query chunk has %d placeholders but %d arguments", numPlaceholders, len(args)))
	}

	for _, arg := range args {
		qb.args = append(qb.args, arg)
		sql = strings.Replace(sql, "$?", fmt.Sprintf("$%d", len(qb.args)), 1)
	}

	qb.sql.WriteString(sql)
	qb.sql.WriteString("\n")
}

func (qb *QueryBuilder) String() string {
	return qb.sql.String()
}

func (qb *QueryBuilder) Args() []interface{} {
	return qb.args
}
