package main

import (
	"log"
	"os"

	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
	"github.com/vegasq/tabular/writer"
)

// Generates the sample datasets used in the README examples:
//
//	go run ./testdata/generate.go
func main() {
	items := table.MustNew(schema.MustNew(
		schema.Field{Name: "Item_Identifier", Type: schema.StringType},
		schema.Field{Name: "Item_Fat_Content", Type: schema.StringType, Nullable: true},
		schema.Field{Name: "Item_Weight", Type: schema.Float64Type, Nullable: true},
		schema.Field{Name: "Item_Type", Type: schema.StringType},
	), []table.Row{
		{"FDA15", "Low Fat", 9.3, "Dairy"},
		{"DRC01", "Regular", 5.92, "Soft Drinks"},
		{"FDN15", "Low Fat", 17.5, "Meat"},
		{"FDX07", "Regular", nil, "Fruits and Vegetables"},
		{"NCD19", nil, 8.93, "Household"},
	})

	emp := table.MustNew(schema.MustNew(
		schema.Field{Name: "id", Type: schema.Int64Type},
		schema.Field{Name: "name", Type: schema.StringType},
		schema.Field{Name: "dept_id", Type: schema.StringType, Nullable: true},
		schema.Field{Name: "salary", Type: schema.Int64Type},
	), []table.Row{
		{int64(3), "alice", "d03", int64(5200)},
		{int64(4), "bob", "d03", int64(4100)},
		{int64(5), "charlie", "d99", int64(6100)},
		{int64(6), "diana", nil, int64(3900)},
	})

	dept := table.MustNew(schema.MustNew(
		schema.Field{Name: "dept_id", Type: schema.StringType},
		schema.Field{Name: "department", Type: schema.StringType},
	), []table.Row{
		{"d03", "Accounts"},
		{"d10", "Sales"},
	})

	outputs := []struct {
		t      *table.Table
		path   string
		format reader.Format
	}{
		{items, "items", reader.Parquet},
		{items, "items_csv", reader.CSV},
		{emp, "emp", reader.JSON},
		{dept, "dept", reader.CSV},
	}
	for _, o := range outputs {
		err := writer.Write(o.t, o.path, writer.Options{Format: o.format, Mode: writer.Overwrite, Header: true})
		if err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("Generated %d sample datasets in %s", len(outputs), mustGetwd())
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	return wd
}
