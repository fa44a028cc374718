/*
This package contains lowish-level APIs for making queries against our
Postgres database. It streamlines the mapping of query results to Go types
while still letting you write arbitrary SQL.

The primary functions are Query and QueryOne. Result structs use `db` tags
to name their columns:

	type Post struct {
		PostID  string    `db:"post_id"`
		Subject string    `db:"subject"`
		Date    time.Time `db:"date"`
	}
	posts, err := db.Query[models.Post](ctx, conn,
		`SELECT post_id, subject, date FROM post WHERE topic_id = $1`,
		topicID,
	)

Columns are matched to fields by tag name, so the select list must name
every column the struct expects (extra struct fields are left zero).

For single-column results, use the Scalar variants:

	ids, err := db.QueryScalar[string](ctx, conn, `SELECT post_id FROM post`)

Arguments use $1, $2, etc. and are escaped by pgx. When composing a query
from optional clauses, use QueryBuilder and its $? placeholder.
*/
package db
