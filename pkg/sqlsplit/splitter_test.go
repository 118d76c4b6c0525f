package sqlsplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSimple(t *testing.T) {
	stmts := Split("CREATE TABLE a (id int);\nCREATE TABLE b (id int);")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id int)", stmts[0].SQL)
	assert.Equal(t, 1, stmts[0].StartLine)
	assert.Equal(t, "CREATE TABLE b (id int)", stmts[1].SQL)
	assert.Equal(t, 2, stmts[1].StartLine)
}

func TestSplitDollarQuotedSemicolon(t *testing.T) {
	sql := `CREATE FUNCTION f() RETURNS int LANGUAGE sql AS $$
		SELECT 1; SELECT 2;
	$$;
	CREATE VIEW v AS SELECT 1;`
	stmts := Split(sql)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0].SQL, "SELECT 1; SELECT 2;")
	assert.Equal(t, "CREATE VIEW v AS SELECT 1", stmts[1].SQL)
}

func TestSplitTaggedDollarQuote(t *testing.T) {
	sql := `CREATE FUNCTION f() RETURNS text LANGUAGE plpgsql AS $body$
		BEGIN
			RETURN $inner$nested; semicolon$inner$;
		END;
	$body$;`
	stmts := Split(sql)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].SQL, "$inner$nested; semicolon$inner$")
}

func TestSplitLineAndBlockComments(t *testing.T) {
	sql := `-- a leading comment with a ; in it
	CREATE VIEW v AS SELECT 1; /* block ; comment
	spanning lines */
	CREATE VIEW w AS SELECT 2;`
	stmts := Split(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, 2, stmts[0].StartLine)
}

func TestSplitSingleQuoteEscapes(t *testing.T) {
	sql := `CREATE FUNCTION f() RETURNS text LANGUAGE sql AS 'SELECT ''a;b''';`
	stmts := Split(sql)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].SQL, "'a;b'")
}

func TestSplitDropsEmptyStatements(t *testing.T) {
	stmts := Split(";;; CREATE VIEW v AS SELECT 1;; ;")
	require.Len(t, stmts, 1)
}
