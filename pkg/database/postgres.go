package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
)

// Postgres implements RelationalDatabase over a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PoolConfig tunes the pgx pool.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres connects to the target database. The pool is shared by all
// concurrent pipeline runs.
func NewPostgres(ctx context.Context, connString string, cfg PoolConfig, logger *zap.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Postgres{pool: pool, logger: logger.Named("database")}, nil
}

// tablesQuery lists user tables, excluding system schemas.
const tablesQuery = `
	SELECT t.table_name
	FROM information_schema.tables t
	WHERE t.table_type = 'BASE TABLE'
	  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	ORDER BY t.table_name
`

// columnsQuery returns columns in ordinal order with primary key flags.
// pg_index.indisprimary correctly detects PKs even when created as unique
// indexes by ORMs.
const columnsQuery = `
	SELECT
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES' AS is_nullable,
		COALESCE(pk.is_pk, false) AS is_primary_key
	FROM information_schema.columns c
	LEFT JOIN (
		SELECT a.attname AS column_name, true AS is_pk
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE ix.indisprimary = true
		  AND t.relname = $1
	) pk ON c.column_name = pk.column_name
	WHERE c.table_name = $1
	  AND c.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	ORDER BY c.ordinal_position
`

// foreignKeysQuery returns every FK edge in user schemas.
const foreignKeysQuery = `
	SELECT
		kcu.table_name AS source_table,
		kcu.column_name AS source_column,
		ccu.table_name AS target_table,
		ccu.column_name AS target_column
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name
		AND tc.table_schema = ccu.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
	  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	ORDER BY kcu.table_name, kcu.column_name
`

// indexedColumnsQuery returns the leading column of every index per table.
const indexedColumnsQuery = `
	SELECT t.relname AS table_name, a.attname AS column_name
	FROM pg_index ix
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ix.indkey[0]
	WHERE n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	ORDER BY t.relname, a.attname
`

// IntrospectSchema implements RelationalDatabase.
func (p *Postgres) IntrospectSchema(ctx context.Context) ([]models.SchemaEntity, error) {
	rows, err := p.pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tableNames = append(tableNames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	fksByTable, fkColumns, err := p.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}
	indexesByTable, err := p.indexedColumns(ctx)
	if err != nil {
		return nil, err
	}

	entities := make([]models.SchemaEntity, 0, len(tableNames))
	for _, name := range tableNames {
		columns, err := p.columns(ctx, name, fkColumns[name])
		if err != nil {
			return nil, err
		}
		entities = append(entities, models.SchemaEntity{
			Name:           name,
			Columns:        columns,
			Relationships:  fksByTable[name],
			IndexedColumns: indexesByTable[name],
		})
	}

	p.logger.Info("schema introspected", zap.Int("tables", len(entities)))

	return entities, nil
}

func (p *Postgres) columns(ctx context.Context, table string, fkCols map[string]bool) ([]models.Column, error) {
	rows, err := p.pool.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.IsForeignKey = fkCols[c.Name]
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

func (p *Postgres) foreignKeys(ctx context.Context) (map[string][]models.Relationship, map[string]map[string]bool, error) {
	rows, err := p.pool.Query(ctx, foreignKeysQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	byTable := make(map[string][]models.Relationship)
	fkColumns := make(map[string]map[string]bool)
	for rows.Next() {
		var sourceTable, sourceColumn, targetTable, targetColumn string
		if err := rows.Scan(&sourceTable, &sourceColumn, &targetTable, &targetColumn); err != nil {
			return nil, nil, fmt.Errorf("scan foreign key: %w", err)
		}
		byTable[sourceTable] = append(byTable[sourceTable], models.Relationship{
			ConstrainedTable:   sourceTable,
			ConstrainedColumns: []string{sourceColumn},
			ReferredTable:      targetTable,
			ReferredColumns:    []string{targetColumn},
		})
		if fkColumns[sourceTable] == nil {
			fkColumns[sourceTable] = make(map[string]bool)
		}
		fkColumns[sourceTable][sourceColumn] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return byTable, fkColumns, nil
}

func (p *Postgres) indexedColumns(ctx context.Context) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx, indexedColumnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

	byTable := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		byTable[table] = append(byTable[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}

	return byTable, nil
}

// Execute implements RelationalDatabase. The statement is always wrapped
// with a LIMIT so results stay bounded regardless of what was generated.
func (p *Postgres) Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) (*ExecuteResult, error) {
	if rowLimit <= 0 {
		rowLimit = 100
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", sql, rowLimit)

	start := time.Now()
	rows, err := p.pool.Query(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &ExecuteResult{
		Columns:  columns,
		Rows:     result,
		RowCount: len(result),
		Elapsed:  time.Since(start),
	}, nil
}

// Pool exposes the underlying pool for collaborators that share the
// connection, such as the pgvector store.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// PoolStats implements RelationalDatabase.
func (p *Postgres) PoolStats() models.PoolStats {
	stat := p.pool.Stat()
	return models.PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		AcquireCount:  stat.AcquireCount(),
	}
}

// Close implements RelationalDatabase.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ensure Postgres implements RelationalDatabase at compile time.
var _ RelationalDatabase = (*Postgres)(nil)
