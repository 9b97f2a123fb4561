package db

import (
	"context"
	"fmt"
	"time"
)

// ColumnInfo describes one column of a user table
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	IsNullable bool   `json:"isNullable"`
}

// TableColumns is a user table together with its columns in ordinal order
type TableColumns struct {
	TableName  string       `json:"tableName"`
	SchemaName string       `json:"schemaName"`
	Columns    []ColumnInfo `json:"columns"`
}

// IndexDef is one row of pg_indexes
type IndexDef struct {
	IndexName  string `json:"indexname"`
	TableName  string `json:"tablename"`
	SchemaName string `json:"schemaname"`
	IndexDef   string `json:"indexdef"`
}

// IndexUsage is one row of pg_stat_user_indexes
type IndexUsage struct {
	SchemaName   string `json:"schemaname"`
	RelName      string `json:"relname"`
	IndexRelName string `json:"indexrelname"`
	IdxScan      int64  `json:"idx_scan"`
	IdxTupRead   int64  `json:"idx_tup_read"`
	IdxTupFetch  int64  `json:"idx_tup_fetch"`
}

// TableStat holds size and maintenance statistics for a user table
type TableStat struct {
	SchemaName      string     `json:"schemaname"`
	TableName       string     `json:"tablename"`
	LiveRows        int64      `json:"live_rows"`
	TotalBytes      int64      `json:"total_bytes"`
	TableBytes      int64      `json:"table_bytes"`
	IndexBytes      int64      `json:"index_bytes"`
	LastVacuum      *time.Time `json:"last_vacuum"`
	LastAutovacuum  *time.Time `json:"last_autovacuum"`
	LastAnalyze     *time.Time `json:"last_analyze"`
	LastAutoanalyze *time.Time `json:"last_autoanalyze"`
}

// ForeignKey is one edge of a FOREIGN KEY constraint
type ForeignKey struct {
	TableSchema        string `json:"table_schema"`
	TableName          string `json:"table_name"`
	ColumnName         string `json:"column_name"`
	ForeignTableSchema string `json:"foreign_table_schema"`
	ForeignTableName   string `json:"foreign_table_name"`
	ForeignColumnName  string `json:"foreign_column_name"`
	ConstraintName     string `json:"constraint_name"`
}

// ColumnStat is one row of pg_stats
type ColumnStat struct {
	SchemaName      string    `json:"schemaname"`
	TableName       string    `json:"tablename"`
	ColumnName      string    `json:"attname"`
	NDistinct       float64   `json:"n_distinct"`
	NullFrac        float64   `json:"null_frac"`
	AvgWidth        int32     `json:"avg_width"`
	MostCommonVals  *string   `json:"most_common_vals"`
	MostCommonFreqs []float64 `json:"most_common_freqs"`
}

const systemSchemas = `('pg_catalog', 'information_schema', 'pg_toast')`

// ListTablesWithColumns returns every user table with its columns in ordinal order
func ListTablesWithColumns(ctx context.Context, q Querier) ([]TableColumns, error) {
	query := `
		SELECT
			t.table_schema,
			t.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable
		FROM information_schema.tables t
		LEFT JOIN information_schema.columns c
			ON c.table_schema = t.table_schema AND c.table_name = t.table_name
		WHERE t.table_schema NOT IN ` + systemSchemas + `
		ORDER BY t.table_schema, t.table_name, c.ordinal_position
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []TableColumns{}
	for rows.Next() {
		var schema, table string
		var column, dataType *string
		var nullable *bool
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}

		n := len(tables)
		if n == 0 || tables[n-1].SchemaName != schema || tables[n-1].TableName != table {
			tables = append(tables, TableColumns{TableName: table, SchemaName: schema, Columns: []ColumnInfo{}})
			n++
		}
		if column != nil {
			col := ColumnInfo{Name: *column}
			if dataType != nil {
				col.Type = *dataType
			}
			if nullable != nil {
				col.IsNullable = *nullable
			}
			tables[n-1].Columns = append(tables[n-1].Columns, col)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during table listing iteration: %w", err)
	}
	return tables, nil
}

// ListIndexes returns index definitions outside the system schemas
func ListIndexes(ctx context.Context, q Querier) ([]IndexDef, error) {
	query := `
		SELECT indexname, tablename, schemaname, indexdef
		FROM pg_indexes
		WHERE schemaname NOT IN ` + systemSchemas + `
		ORDER BY schemaname, tablename, indexname
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	indexes := []IndexDef{}
	for rows.Next() {
		var idx IndexDef
		if err := rows.Scan(&idx.IndexName, &idx.TableName, &idx.SchemaName, &idx.IndexDef); err != nil {
			return nil, fmt.Errorf("failed to scan index info: %w", err)
		}
		indexes = append(indexes, idx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during index iteration: %w", err)
	}
	return indexes, nil
}

// GetIndexUsage returns scan and tuple counters per user index
func GetIndexUsage(ctx context.Context, q Querier) ([]IndexUsage, error) {
	query := `
		SELECT
			schemaname,
			relname,
			indexrelname,
			COALESCE(idx_scan, 0),
			COALESCE(idx_tup_read, 0),
			COALESCE(idx_tup_fetch, 0)
		FROM pg_stat_user_indexes
		ORDER BY schemaname, relname, indexrelname
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get index usage: %w", err)
	}
	defer rows.Close()

	usage := []IndexUsage{}
	for rows.Next() {
		var u IndexUsage
		if err := rows.Scan(&u.SchemaName, &u.RelName, &u.IndexRelName, &u.IdxScan, &u.IdxTupRead, &u.IdxTupFetch); err != nil {
			return nil, fmt.Errorf("failed to scan index usage: %w", err)
		}
		usage = append(usage, u)
	}

	return usage, rows.Err()
}

// GetTableStats returns row estimates, sizes and maintenance timestamps, largest first
func GetTableStats(ctx context.Context, q Querier) ([]TableStat, error) {
	query := `
		SELECT
			s.schemaname,
			s.relname,
			COALESCE(s.n_live_tup, 0),
			pg_total_relation_size(s.relid),
			pg_relation_size(s.relid),
			pg_indexes_size(s.relid),
			s.last_vacuum,
			s.last_autovacuum,
			s.last_analyze,
			s.last_autoanalyze
		FROM pg_stat_user_tables s
		ORDER BY pg_total_relation_size(s.relid) DESC, s.schemaname, s.relname
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get table stats: %w", err)
	}
	defer rows.Close()

	stats := []TableStat{}
	for rows.Next() {
		var s TableStat
		err := rows.Scan(
			&s.SchemaName, &s.TableName, &s.LiveRows,
			&s.TotalBytes, &s.TableBytes, &s.IndexBytes,
			&s.LastVacuum, &s.LastAutovacuum, &s.LastAnalyze, &s.LastAutoanalyze,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table stats: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during table stats iteration: %w", err)
	}
	return stats, nil
}

// GetForeignKeys returns every foreign key edge in the user schemas
func GetForeignKeys(ctx context.Context, q Querier) ([]ForeignKey, error) {
	query := `
		SELECT
			tc.table_schema,
			tc.table_name,
			kcu.column_name,
			ccu.table_schema AS foreign_table_schema,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			tc.constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.constraint_schema = tc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema NOT IN ` + systemSchemas + `
		ORDER BY tc.table_schema, tc.table_name, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	defer rows.Close()

	foreignKeys := []ForeignKey{}
	for rows.Next() {
		var fk ForeignKey
		err := rows.Scan(
			&fk.TableSchema, &fk.TableName, &fk.ColumnName,
			&fk.ForeignTableSchema, &fk.ForeignTableName, &fk.ForeignColumnName,
			&fk.ConstraintName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan foreign key info: %w", err)
		}
		foreignKeys = append(foreignKeys, fk)
	}

	return foreignKeys, rows.Err()
}

// GetColumnStats returns planner statistics per column, optionally for one table.
// The table may be qualified as schema.table.
func GetColumnStats(ctx context.Context, q Querier, table string) ([]ColumnStat, error) {
	query := `
		SELECT
			schemaname,
			tablename,
			attname,
			COALESCE(n_distinct, 0)::float8,
			COALESCE(null_frac, 0)::float8,
			COALESCE(avg_width, 0),
			most_common_vals::text,
			most_common_freqs::float8[]
		FROM pg_stats
		WHERE schemaname NOT IN ` + systemSchemas + `
		AND ($1 = '' OR tablename = $1 OR schemaname || '.' || tablename = $1)
		ORDER BY schemaname, tablename, attname
	`

	rows, err := q.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get column stats: %w", err)
	}
	defer rows.Close()

	stats := []ColumnStat{}
	for rows.Next() {
		var s ColumnStat
		err := rows.Scan(
			&s.SchemaName, &s.TableName, &s.ColumnName,
			&s.NDistinct, &s.NullFrac, &s.AvgWidth,
			&s.MostCommonVals, &s.MostCommonFreqs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column stats: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during column stats iteration: %w", err)
	}
	return stats, nil
}
