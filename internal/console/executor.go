// Package console implements the read-mostly SQL admin console over the
// sharded catalog. Operators connect with psql; SELECTs see the same merged
// cross-shard view the application sees, writes go through the catalog's
// normal write paths.
package console

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/firmwarefinder/firmstore"
	"github.com/xwb1989/sqlparser"
)

// Result represents the result of executing a SQL statement
type Result struct {
	Columns      []string
	Rows         [][]string
	RowsAffected int
	Message      string
}

// Column orders for the catalog tables. The schema is fixed; DDL is not
// supported.
var tableColumns = map[string][]string{
	firmstore.CollectionBrands:   {"id", "name"},
	firmstore.CollectionSeries:   {"id", "brandId", "name"},
	firmstore.CollectionFirmware: {"id", "brandId", "seriesId", "fileName", "version", "androidVersion", "size", "downloadUrl", "uploadDate", "downloadCount"},
	firmstore.CollectionTools:    {"id", "name", "description", "downloadUrl"},
	firmstore.CollectionSettings: {"id"},
}

// shardsTable is a virtual table exposing per-shard document counts
const shardsTable = "shards"

// Executor executes SQL statements against the shard set
type Executor struct {
	shards  *firmstore.ShardSet
	catalog *firmstore.Catalog
}

// NewExecutor creates a new SQL executor
func NewExecutor(shards *firmstore.ShardSet, catalog *firmstore.Catalog) *Executor {
	return &Executor{shards: shards, catalog: catalog}
}

// Execute parses and executes a SQL statement
func (e *Executor) Execute(ctx context.Context, sql string) (*Result, error) {
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if sql == "" {
		return &Result{Message: "OK"}, nil
	}

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		return e.executeSelect(ctx, s)
	case *sqlparser.Insert:
		return e.executeInsert(ctx, s)
	case *sqlparser.Update:
		return e.executeUpdate(ctx, s)
	case *sqlparser.Delete:
		return e.executeDelete(ctx, s)
	case *sqlparser.DDL:
		return nil, fmt.Errorf("the catalog schema is fixed; DDL is not supported")
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// mergedRows reads a collection from every shard and dedups by id with the
// earliest shard winning, matching the application's read semantics.
func (e *Executor) mergedRows(ctx context.Context, table string) ([]map[string]interface{}, error) {
	perShard, err := firmstore.FanOut(ctx, e.shards, func(ctx context.Context, shard *firmstore.Shard) ([]map[string]interface{}, error) {
		return shard.AllDocs(ctx, table)
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var rows []map[string]interface{}
	for _, docs := range perShard {
		for _, doc := range docs {
			id, _ := doc["id"].(string)
			if id != "" && seen[id] {
				continue
			}
			seen[id] = true
			rows = append(rows, doc)
		}
	}
	return rows, nil
}

func (e *Executor) executeSelect(ctx context.Context, stmt *sqlparser.Select) (*Result, error) {
	if len(stmt.From) != 1 {
		return nil, fmt.Errorf("only single table SELECT supported")
	}
	table, err := getTableName(stmt.From[0])
	if err != nil {
		return nil, err
	}

	if table == shardsTable {
		return e.selectShards(ctx)
	}

	allColumns, ok := tableColumns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table: %s", table)
	}

	rows, err := e.mergedRows(ctx, table)
	if err != nil {
		return nil, err
	}

	var columns []string
	for _, expr := range stmt.SelectExprs {
		switch sel := expr.(type) {
		case *sqlparser.StarExpr:
			columns = allColumns
		case *sqlparser.AliasedExpr:
			if col, ok := sel.Expr.(*sqlparser.ColName); ok {
				columns = append(columns, col.Name.String())
			}
		}
	}
	if len(columns) == 0 {
		columns = allColumns
	}

	var filtered []map[string]interface{}
	for _, row := range rows {
		if stmt.Where == nil || matchesWhere(row, stmt.Where.Expr) {
			filtered = append(filtered, row)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		a, _ := filtered[i]["id"].(string)
		b, _ := filtered[j]["id"].(string)
		return a < b
	})

	resultRows := make([][]string, len(filtered))
	for i, row := range filtered {
		resultRows[i] = make([]string, len(columns))
		for j, col := range columns {
			resultRows[i][j] = formatValue(row[col])
		}
	}

	return &Result{
		Columns: columns,
		Rows:    resultRows,
		Message: fmt.Sprintf("SELECT %d", len(resultRows)),
	}, nil
}

// selectShards serves the virtual shards table: one row per shard with its
// per-collection document counts.
func (e *Executor) selectShards(ctx context.Context) (*Result, error) {
	collections := []string{
		firmstore.CollectionBrands, firmstore.CollectionSeries,
		firmstore.CollectionFirmware, firmstore.CollectionTools,
	}
	columns := append([]string{"shard"}, collections...)

	var rows [][]string
	for _, shard := range e.shards.Shards() {
		row := []string{shard.Name()}
		for _, collection := range collections {
			n, err := shard.Count(ctx, collection)
			if err != nil {
				return nil, err
			}
			row = append(row, strconv.Itoa(n))
		}
		rows = append(rows, row)
	}

	return &Result{
		Columns: columns,
		Rows:    rows,
		Message: fmt.Sprintf("SELECT %d", len(rows)),
	}, nil
}

func (e *Executor) executeInsert(ctx context.Context, stmt *sqlparser.Insert) (*Result, error) {
	table := stmt.Table.Name.String()

	var columns []string
	for _, col := range stmt.Columns {
		columns = append(columns, col.String())
	}

	values, ok := stmt.Rows.(sqlparser.Values)
	if !ok {
		return nil, fmt.Errorf("only VALUES clause supported for INSERT")
	}

	inserted := 0
	for _, tuple := range values {
		row := make(map[string]string)
		for i, val := range tuple {
			if i < len(columns) {
				row[columns[i]] = formatValue(evalExpr(val))
			}
		}
		if err := e.insertRow(ctx, table, row); err != nil {
			return nil, err
		}
		inserted++
	}

	return &Result{
		RowsAffected: inserted,
		Message:      fmt.Sprintf("INSERT 0 %d", inserted),
	}, nil
}

// insertRow routes inserts through the catalog's write paths, so slug ids
// and foreign-key checks apply exactly as they do for the application.
func (e *Executor) insertRow(ctx context.Context, table string, row map[string]string) error {
	switch table {
	case firmstore.CollectionBrands:
		_, err := e.catalog.CreateBrand(ctx, row["name"])
		return err
	case firmstore.CollectionSeries:
		_, err := e.catalog.CreateSeries(ctx, row["brandId"], row["name"])
		return err
	case firmstore.CollectionFirmware:
		count, _ := strconv.ParseInt(row["downloadCount"], 10, 64)
		_, err := e.catalog.AddFirmware(ctx, firmstore.Firmware{
			ID:             row["id"],
			BrandID:        row["brandId"],
			SeriesID:       row["seriesId"],
			FileName:       row["fileName"],
			Version:        row["version"],
			AndroidVersion: row["androidVersion"],
			Size:           row["size"],
			DownloadURL:    row["downloadUrl"],
			UploadDate:     row["uploadDate"],
			DownloadCount:  count,
		})
		return err
	case firmstore.CollectionTools:
		_, err := e.catalog.GetOrCreateTool(ctx, row["name"], row["description"])
		return err
	default:
		return fmt.Errorf("INSERT not supported for table %s", table)
	}
}

func (e *Executor) executeUpdate(ctx context.Context, stmt *sqlparser.Update) (*Result, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, fmt.Errorf("only single table UPDATE supported")
	}
	table, err := getTableName(stmt.TableExprs[0])
	if err != nil {
		return nil, err
	}
	if _, ok := tableColumns[table]; !ok {
		return nil, fmt.Errorf("unknown table: %s", table)
	}

	patch := make(map[string]interface{})
	for _, expr := range stmt.Exprs {
		patch[expr.Name.Name.String()] = evalExpr(expr.Expr)
	}

	rows, err := e.mergedRows(ctx, table)
	if err != nil {
		return nil, err
	}

	affected := 0
	for _, row := range rows {
		if stmt.Where != nil && !matchesWhere(row, stmt.Where.Expr) {
			continue
		}
		id, ok := row["id"].(string)
		if !ok {
			continue
		}
		shard, err := e.locate(ctx, table, id)
		if err != nil {
			return nil, err
		}
		if err := shard.MergeDoc(ctx, table, id, patch); err != nil {
			return nil, err
		}
		affected++
	}

	return &Result{
		RowsAffected: affected,
		Message:      fmt.Sprintf("UPDATE %d", affected),
	}, nil
}

func (e *Executor) executeDelete(ctx context.Context, stmt *sqlparser.Delete) (*Result, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, fmt.Errorf("only single table DELETE supported")
	}
	table, err := getTableName(stmt.TableExprs[0])
	if err != nil {
		return nil, err
	}
	if _, ok := tableColumns[table]; !ok {
		return nil, fmt.Errorf("unknown table: %s", table)
	}

	rows, err := e.mergedRows(ctx, table)
	if err != nil {
		return nil, err
	}

	affected := 0
	for _, row := range rows {
		if stmt.Where != nil && !matchesWhere(row, stmt.Where.Expr) {
			continue
		}
		id, ok := row["id"].(string)
		if !ok {
			continue
		}
		shard, err := e.locate(ctx, table, id)
		if err != nil {
			return nil, err
		}
		if err := shard.DeleteDoc(ctx, table, id); err != nil {
			return nil, err
		}
		affected++
	}

	return &Result{
		RowsAffected: affected,
		Message:      fmt.Sprintf("DELETE %d", affected),
	}, nil
}

// locate finds the shard holding a document, probing in set order
func (e *Executor) locate(ctx context.Context, table, id string) (*firmstore.Shard, error) {
	for _, shard := range e.shards.Shards() {
		var doc map[string]interface{}
		err := shard.GetDoc(ctx, table, id, &doc)
		if err == nil {
			return shard, nil
		}
		if !firmstore.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, firmstore.WithContext(firmstore.ErrNotFound, map[string]interface{}{
		"table": table, "id": id,
	})
}

// Helper functions

func getTableName(expr sqlparser.TableExpr) (string, error) {
	if t, ok := expr.(*sqlparser.AliasedTableExpr); ok {
		if tbl, ok := t.Expr.(sqlparser.TableName); ok {
			return tbl.Name.String(), nil
		}
	}
	return "", fmt.Errorf("could not determine table name")
}

func evalExpr(expr sqlparser.Expr) interface{} {
	switch e := expr.(type) {
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.StrVal, sqlparser.IntVal, sqlparser.FloatVal:
			return string(e.Val)
		}
	case *sqlparser.NullVal:
		return nil
	}
	return nil
}

func matchesWhere(row map[string]interface{}, expr sqlparser.Expr) bool {
	switch e := expr.(type) {
	case *sqlparser.ComparisonExpr:
		left := getColumnValue(row, e.Left)
		right := evalExpr(e.Right)

		switch e.Operator {
		case "=":
			return formatValue(left) == formatValue(right)
		case "!=", "<>":
			return formatValue(left) != formatValue(right)
		}
	case *sqlparser.AndExpr:
		return matchesWhere(row, e.Left) && matchesWhere(row, e.Right)
	case *sqlparser.OrExpr:
		return matchesWhere(row, e.Left) || matchesWhere(row, e.Right)
	}
	return true
}

func getColumnValue(row map[string]interface{}, expr sqlparser.Expr) interface{} {
	if e, ok := expr.(*sqlparser.ColName); ok {
		return row[e.Name.String()]
	}
	return nil
}

// formatValue renders a JSON-decoded value as console text. JSON numbers
// decode as float64; integral ones print without an exponent or decimals.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
