package query

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

func mustTable(t *testing.T, ddl string, rows ...table.Row) *table.Table {
	t.Helper()
	s, err := schema.ParseDDL(ddl)
	require.NoError(t, err)
	tb, err := table.New(s, rows)
	require.NoError(t, err)
	return tb
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, c.Register("sales", mustTable(t, "dept string, name string, amount bigint",
		table.Row{"a", "x", 10},
		table.Row{"a", "y", 20},
		table.Row{"a", "z", 20},
		table.Row{"b", "w", 5},
	)))
	require.NoError(t, c.Register("items", mustTable(t, "item_type string, sales double",
		table.Row{"Regular", 10.0},
		table.Row{"Low Fat", 5.0},
	)))
	require.NoError(t, c.Register("emp", mustTable(t, "emp_id bigint, dept_id string",
		table.Row{3, "d03"},
		table.Row{4, "d03"},
		table.Row{5, "d99"},
	)))
	require.NoError(t, c.Register("dept", mustTable(t, "id string, department string",
		table.Row{"d03", "Accounts"},
		table.Row{"d10", "HR"},
	)))
	return c
}

func query(t *testing.T, c *Catalog, sql string) *table.Table {
	t.Helper()
	out, err := c.Query(sql)
	require.NoError(t, err, sql)
	return out
}

func rows(t *testing.T, tb *table.Table) []table.Row {
	t.Helper()
	r, err := tb.Rows()
	require.NoError(t, err)
	return r
}

func TestQueryFilter(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, "SELECT * FROM items WHERE item_type = 'Regular'")
	assert.Equal(t, []string{"item_type", "sales"}, out.Schema().Names())
	assert.Equal(t, []table.Row{{"Regular", 10.0}}, rows(t, out))
}

func TestQueryJoin(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, `SELECT e.emp_id, d.department FROM emp e
		JOIN dept d ON e.dept_id = d.id ORDER BY e.emp_id`)
	assert.Equal(t, []string{"emp_id", "department"}, out.Schema().Names())
	assert.Equal(t, []table.Row{{int64(3), "Accounts"}, {int64(4), "Accounts"}}, rows(t, out))

	// the merged key keeps the left name and answers to both qualifiers
	out = query(t, c, "SELECT d.id, count(*) AS n FROM emp e LEFT JOIN dept d ON d.id = e.dept_id GROUP BY d.id ORDER BY 1")
	assert.Equal(t, []string{"id", "n"}, out.Schema().Names())
	assert.Equal(t, []table.Row{{"d03", int64(2)}, {"d99", int64(1)}}, rows(t, out))

	// unqualified ON columns are matched to the side that has them
	out = query(t, c, "SELECT emp_id, department FROM emp JOIN dept ON id = dept_id ORDER BY emp_id")
	assert.Equal(t, []table.Row{{int64(3), "Accounts"}, {int64(4), "Accounts"}}, rows(t, out))

	out = query(t, c, "SELECT emp_id FROM emp LEFT ANTI JOIN (SELECT id AS dept_id FROM dept) d USING (dept_id)")
	assert.Equal(t, []table.Row{{int64(5)}}, rows(t, out))
}

func TestQueryGroupBy(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, `SELECT dept, sum(amount) AS total, count(*) AS n FROM sales
		GROUP BY dept HAVING count(*) > 1 ORDER BY total DESC`)
	assert.Equal(t, []string{"dept", "total", "n"}, out.Schema().Names())
	assert.Equal(t, []table.Row{{"a", int64(50), int64(3)}}, rows(t, out))

	out = query(t, c, "SELECT dept, count(*), max(amount) FROM sales GROUP BY dept ORDER BY 2")
	assert.Equal(t, []string{"dept", "count(*)", "max(amount)"}, out.Schema().Names())
	assert.Equal(t, []table.Row{{"b", int64(1), int64(5)}, {"a", int64(3), int64(20)}}, rows(t, out))

	out = query(t, c, "SELECT upper(dept) AS d, count(DISTINCT amount) AS amounts FROM sales GROUP BY upper(dept) ORDER BY d")
	assert.Equal(t, []table.Row{{"A", int64(2)}, {"B", int64(1)}}, rows(t, out))

	out = query(t, c, "SELECT sum(amount * 2) AS doubled, avg(amount) FROM sales")
	require.Equal(t, 1, len(rows(t, out)))
	assert.Equal(t, int64(110), rows(t, out)[0][0])
	assert.InDelta(t, 13.75, rows(t, out)[0][1], 1e-9)
}

func TestQueryWindows(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, "SELECT name, rank() OVER (PARTITION BY dept ORDER BY amount DESC) AS rk FROM sales")
	assert.Equal(t, []table.Row{{"x", int64(3)}, {"y", int64(1)}, {"z", int64(1)}, {"w", int64(1)}}, rows(t, out))

	out = query(t, c, `SELECT name,
		sum(amount) OVER (PARTITION BY dept ORDER BY amount ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS running,
		count(*) OVER (PARTITION BY dept) AS cnt
		FROM sales ORDER BY name`)
	assert.Equal(t, []string{"name", "running", "cnt"}, out.Schema().Names())
	assert.Equal(t, []table.Row{
		{"w", int64(5), int64(1)},
		{"x", int64(10), int64(3)},
		{"y", int64(30), int64(3)},
		{"z", int64(50), int64(3)},
	}, rows(t, out))

	out = query(t, c, "SELECT name, lag(name, 1, '-') OVER (ORDER BY name) AS prev FROM sales ORDER BY name")
	assert.Equal(t, []table.Row{{"w", "-"}, {"x", "w"}, {"y", "x"}, {"z", "y"}}, rows(t, out))

	out = query(t, c, "SELECT name, lag(name) OVER (ORDER BY name) AS prev, lead(name, 0) OVER (ORDER BY name) AS same FROM sales ORDER BY name")
	assert.Equal(t, []table.Row{{"w", nil, "w"}, {"x", "w", "x"}, {"y", "x", "y"}, {"z", "y", "z"}}, rows(t, out))
}

func TestQueryDistinctOrderLimit(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, "SELECT DISTINCT dept FROM sales ORDER BY dept DESC")
	assert.Equal(t, []table.Row{{"b"}, {"a"}}, rows(t, out))

	out = query(t, c, "SELECT name FROM sales ORDER BY name LIMIT 2 OFFSET 1")
	assert.Equal(t, []table.Row{{"x"}, {"y"}}, rows(t, out))

	// amount is not selected, so it is sorted on and then dropped
	out = query(t, c, "SELECT name FROM sales ORDER BY amount DESC, name")
	assert.Equal(t, []string{"name"}, out.Schema().Names())
	assert.Equal(t, []table.Row{{"y"}, {"z"}, {"x"}, {"w"}}, rows(t, out))
}

func TestQueryExpressions(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, `SELECT name || '-' || dept AS tag,
		CASE WHEN amount > 15 THEN 'hi' ELSE 'lo' END AS lvl,
		amount * 2 AS twice
		FROM sales WHERE name IN ('x', 'w', 'y') AND amount BETWEEN 1 AND 15 ORDER BY tag`)
	assert.Equal(t, []table.Row{{"w-b", "lo", int64(10)}, {"x-a", "lo", int64(20)}}, rows(t, out))

	out = query(t, c, "SELECT name FROM sales WHERE name LIKE '_' AND NOT dept = 'a'")
	assert.Equal(t, []table.Row{{"w"}}, rows(t, out))
}

func TestQueryCTEAndSubquery(t *testing.T) {
	c := testCatalog(t)
	out := query(t, c, `WITH big AS (SELECT * FROM sales WHERE amount >= 20),
		names AS (SELECT name FROM big)
		SELECT name FROM names ORDER BY name`)
	assert.Equal(t, []table.Row{{"y"}, {"z"}}, rows(t, out))

	out = query(t, c, "SELECT t.name FROM (SELECT name, amount * 2 AS dbl FROM sales) t WHERE dbl > 30 ORDER BY t.name")
	assert.Equal(t, []table.Row{{"y"}, {"z"}}, rows(t, out))

	_, ok := c.Table("big")
	assert.False(t, ok, "CTEs are not registered")
}

func TestQueryValueSubqueries(t *testing.T) {
	c := testCatalog(t)

	out := query(t, c, "SELECT name FROM sales WHERE amount > (SELECT avg(amount) FROM sales) ORDER BY name")
	assert.Equal(t, []table.Row{{"y"}, {"z"}}, rows(t, out))

	out = query(t, c, "SELECT name, amount - (SELECT min(amount) FROM sales) AS above FROM sales WHERE dept = 'b'")
	assert.Equal(t, []table.Row{{"w", int64(0)}}, rows(t, out))

	out = query(t, c, "SELECT emp_id FROM emp WHERE dept_id IN (SELECT id FROM dept) ORDER BY emp_id")
	assert.Equal(t, []table.Row{{int64(3)}, {int64(4)}}, rows(t, out))

	out = query(t, c, "SELECT emp_id FROM emp WHERE dept_id NOT IN (SELECT id FROM dept WHERE department = 'HR') ORDER BY emp_id")
	assert.Equal(t, []table.Row{{int64(3)}, {int64(4)}, {int64(5)}}, rows(t, out))

	out = query(t, c, `WITH top AS (SELECT max(amount) AS m FROM sales)
		SELECT name FROM sales WHERE amount = (SELECT m FROM top) ORDER BY name`)
	assert.Equal(t, []table.Row{{"y"}, {"z"}}, rows(t, out))

	out = query(t, c, "SELECT name FROM sales WHERE amount = (SELECT amount FROM sales WHERE dept = 'none')")
	assert.Empty(t, rows(t, out))

	for _, sql := range []string{
		"SELECT name FROM sales WHERE amount > (SELECT amount FROM sales)",
		"SELECT emp_id FROM emp WHERE dept_id IN (SELECT id, department FROM dept)",
	} {
		_, err := c.Query(sql)
		var plan errors.InvalidPlanError
		assert.True(t, stderrors.As(err, &plan), "%s: got %v", sql, err)
	}
}

func TestQueryErrors(t *testing.T) {
	c := testCatalog(t)

	_, err := c.Query("SELECT * FROM missing")
	var plan errors.InvalidPlanError
	require.True(t, stderrors.As(err, &plan))
	assert.Equal(t, "from", plan.Op)

	_, err = c.Query("SELECT nope FROM sales")
	var notFound errors.ColumnNotFoundError
	require.True(t, stderrors.As(err, &notFound))
	assert.Equal(t, "nope", notFound.Column)

	tests := []string{
		"SELECT name FROM sales WHERE sum(amount) > 1",
		"SELECT DISTINCT dept FROM sales ORDER BY amount",
		"SELECT name FROM sales ORDER BY 5",
		"SELECT name FROM sales HAVING name = 'x'",
		"SELECT sum(max(amount)) FROM sales",
		"SELECT ntile(0) OVER (ORDER BY amount) FROM sales",
		"SELECT * FROM emp e JOIN dept d ON e.dept_id = d.code",
	}
	for _, sql := range tests {
		t.Run(sql, func(t *testing.T) {
			_, err := c.Query(sql)
			var plan errors.InvalidPlanError
			assert.True(t, stderrors.As(err, &plan), "got %v", err)
		})
	}

	_, err = c.Query("SELECT FROM sales")
	assert.Error(t, err)
}

func TestCatalogRegistry(t *testing.T) {
	c := testCatalog(t)
	assert.Equal(t, []string{"dept", "emp", "items", "sales"}, c.Names())

	out := query(t, c, "SELECT count(*) AS n FROM SALES")
	assert.Equal(t, []table.Row{{int64(4)}}, rows(t, out))

	c.Deregister("Sales")
	_, ok := c.Table("sales")
	assert.False(t, ok)

	assert.Error(t, c.Register("", table.Empty(schema.MustNew())))
	assert.Error(t, c.Register("nil", nil))
}

func TestCatalogPlan(t *testing.T) {
	c := testCatalog(t)
	in, p, err := c.Plan("SELECT dept, sum(amount) FROM sales WHERE amount > 5 GROUP BY dept ORDER BY dept")
	require.NoError(t, err)
	assert.Equal(t, []string{"dept", "name", "amount"}, in.Schema().Names())
	assert.Equal(t, "filter -> groupAggregate -> project -> sort", p.String())
}

func TestCatalogConcurrentUse(t *testing.T) {
	c := testCatalog(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("copy%d", i)
			tb, _ := c.Table("sales")
			assert.NoError(t, c.Register(name, tb))
			out, err := c.Query("SELECT count(*) FROM " + name)
			if assert.NoError(t, err) {
				n, _ := out.Len()
				assert.Equal(t, 1, n)
			}
		}(i)
	}
	wg.Wait()
}
