// Package quoting centralizes identifier and literal escaping for emitted
// DDL. All identifiers the applier and analyzer emit are double-quoted with
// internal double-quotes doubled, matching §4.8's "Identifier quoting"
// contract; schema qualification is always "schema"."name".
package quoting

import "github.com/lib/pq"

// Identifier double-quotes name, doubling any embedded double quotes.
func Identifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// Qualified renders a (possibly empty) schema and a name as a
// schema-qualified, double-quoted identifier.
func Qualified(schema, name string) string {
	if schema == "" {
		return Identifier(name)
	}
	return Identifier(schema) + "." + Identifier(name)
}

// Literal single-quotes s, doubling any embedded single quotes, for use in
// contexts like COMMENT ON ... IS '...' or cron.unschedule('name').
func Literal(s string) string {
	return pq.QuoteLiteral(s)
}
