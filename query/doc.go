// Package query runs SQL queries against registered tables.
//
// Tables are registered in a Catalog under case-insensitive names. A query
// is parsed into a Query, planned into a pipeline over the table named in
// FROM and evaluated. Joined tables, CTEs and subqueries in FROM are
// materialized while planning.
//
// Supported syntax:
//
//	[WITH name AS (query) [, ...]]
//	SELECT [DISTINCT] * | expr [[AS] alias] [, ...]
//	FROM name [alias] | (query) [alias]
//	[[INNER | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | LEFT ANTI | LEFT SEMI] JOIN
//	    source (USING (col, ...) | ON a.x = b.y [AND ...])]
//	[WHERE expr]
//	[GROUP BY expr [, ...]] [HAVING expr]
//	[ORDER BY expr [ASC | DESC] [, ...]]
//	[LIMIT n] [OFFSET m]
//
// Expressions cover arithmetic, comparisons, AND/OR/NOT, || concatenation,
// [NOT] IN, [NOT] LIKE, [NOT] BETWEEN, IS [NOT] NULL, CASE WHEN, CAST and
// DATE 'yyyy-mm-dd' literals. Scalar functions resolve against the expr
// function registry, so registered UDFs are callable by name.
//
// A parenthesized SELECT may stand in for a value, as in
// amount > (SELECT avg(amount) FROM sales), or for an IN list. It must
// return one column, and at most one row when used as a value. These
// subqueries are evaluated once while planning and cannot reference columns
// of the enclosing query.
//
// Aggregates: COUNT(*), COUNT([DISTINCT] x), SUM, AVG, MIN, MAX, FIRST,
// COLLECT_LIST, STDDEV and VARIANCE. Window functions take an OVER clause:
//
//	rank() OVER (PARTITION BY dept ORDER BY salary DESC)
//	sum(x) OVER (ORDER BY d ROWS BETWEEN 2 PRECEDING AND CURRENT ROW)
//	lag(x, 1, 0) OVER (ORDER BY d)
//
// ORDER BY accepts select aliases, positions (ORDER BY 2) and expressions
// over input columns. A qualifier that names no table in scope is kept as
// part of the column name, so nested JSON fields such as addr.city can be
// referenced directly.
package query
