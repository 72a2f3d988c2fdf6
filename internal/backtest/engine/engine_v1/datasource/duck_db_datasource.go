package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"go.uber.org/zap"
)

// timeColumns are the accepted names of the timestamp column, in priority order.
var timeColumns = []string{"datetime", "timestamp", "time", "date"}

// generatedColumn matches names DuckDB invents for blank CSV headers.
var generatedColumn = regexp.MustCompile(`^column\d+$`)

type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
	path   string
}

// NewDataSource creates a new DuckDB data source instance with the specified database path.
// The path parameter specifies the DuckDB database file location, ":memory:" keeps everything in memory.
// This is distinct from Initialize() which attaches a bar file to the database.
func NewDataSource(path string, logger *logger.Logger) (DataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		path:   "",
	}, nil
}

// Initialize implements DataSource.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	var reader string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		reader = "read_csv_auto('%s', header=true)"
	case ".parquet":
		reader = "read_parquet('%s')"
	default:
		return errors.Newf(errors.ErrCodeUnsupportedFormat, "unsupported bar file format: %s", path)
	}

	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "cannot open bar file %s", path)
	}

	// First drop the view if it exists
	_, err := d.db.Exec(`DROP VIEW IF EXISTS market_data;`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to drop existing view", err)
	}

	// Create a view over the file - using raw SQL as Squirrel doesn't support CREATE VIEW
	source := fmt.Sprintf(reader, strings.ReplaceAll(path, "'", "''"))

	_, err = d.db.Exec(fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM %s;`, source))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to read bar file %s", path)
	}

	d.path = path

	return nil
}

// columnMapping is the result of normalising the file's header.
type columnMapping struct {
	time   string
	prices map[string]string
	extras map[string]string
}

// resolveColumns maps the file's columns onto the normalised names.
// Matching is case-insensitive and whitespace tolerant; unnamed columns are dropped.
func (d *DuckDBDataSource) resolveColumns() (columnMapping, error) {
	mapping := columnMapping{
		time:   "",
		prices: map[string]string{},
		extras: map[string]string{},
	}

	query, args, err := d.sq.
		Select("column_name").
		From("information_schema.columns").
		Where(squirrel.Eq{"table_name": "market_data"}).
		OrderBy("ordinal_position").
		ToSql()
	if err != nil {
		return mapping, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build column query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return mapping, errors.Wrap(errors.ErrCodeQueryFailed, "failed to describe bar file", err)
	}
	defer rows.Close()

	found := map[string]string{}

	var order []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return mapping, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan column name", err)
		}

		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" || strings.HasPrefix(normalized, "unnamed:") || generatedColumn.MatchString(normalized) {
			d.logger.Debug("Dropping unnamed column", zap.String("column", name))

			continue
		}

		if _, exists := found[normalized]; exists {
			continue
		}

		found[normalized] = name
		order = append(order, normalized)
	}

	if err := rows.Err(); err != nil {
		return mapping, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read column names", err)
	}

	for _, candidate := range timeColumns {
		if name, ok := found[candidate]; ok {
			mapping.time = name

			break
		}
	}

	if mapping.time == "" {
		return mapping, errors.New(errors.ErrCodeMissingColumn, "missing required column: datetime")
	}

	for _, column := range types.OHLCVColumns {
		name, ok := found[strings.ToLower(column)]
		if !ok {
			return mapping, errors.Newf(errors.ErrCodeMissingColumn, "missing required column: %s", strings.ToLower(column))
		}

		mapping.prices[column] = name
	}

	used := map[string]bool{mapping.time: true}
	for _, name := range mapping.prices {
		used[name] = true
	}

	for _, normalized := range order {
		name := found[normalized]
		if used[name] || isTimeAlias(normalized) {
			continue
		}

		mapping.extras[strings.TrimSpace(name)] = name
	}

	return mapping, nil
}

func isTimeAlias(name string) bool {
	for _, candidate := range timeColumns {
		if candidate == name {
			return true
		}
	}

	return false
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *DuckDBDataSource) timeFilter(builder squirrel.SelectBuilder, timeExpr string, start optional.Option[time.Time], end optional.Option[time.Time]) squirrel.SelectBuilder {
	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{timeExpr: start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{timeExpr: end.Unwrap()})
	}

	return builder
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	mapping, err := d.resolveColumns()
	if err != nil {
		return 0, err
	}

	timeExpr := fmt.Sprintf("CAST(%s AS TIMESTAMP)", quoteIdentifier(mapping.time))

	query, args, err := d.timeFilter(d.sq.Select("COUNT(*)").From("market_data"), timeExpr, start, end).ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count bars", err)
	}

	return count, nil
}

// Load implements DataSource. Rows are read in file order; the series rejects non-increasing timestamps.
func (d *DuckDBDataSource) Load(start optional.Option[time.Time], end optional.Option[time.Time]) (*Series, error) {
	if d.path == "" {
		return nil, errors.New(errors.ErrCodeDataSourceUnavailable, "data source is not initialized")
	}

	mapping, err := d.resolveColumns()
	if err != nil {
		return nil, err
	}

	timeExpr := fmt.Sprintf("CAST(%s AS TIMESTAMP)", quoteIdentifier(mapping.time))
	selects := []string{timeExpr}

	for _, column := range types.OHLCVColumns {
		selects = append(selects, fmt.Sprintf("CAST(%s AS DOUBLE)", quoteIdentifier(mapping.prices[column])))
	}

	extraNames := make([]string, 0, len(mapping.extras))
	for name := range mapping.extras {
		extraNames = append(extraNames, name)
	}

	// stable column order for scanning
	slices.Sort(extraNames)

	for _, name := range extraNames {
		selects = append(selects, fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", quoteIdentifier(mapping.extras[name])))
	}

	query, args, err := d.timeFilter(d.sq.Select(selects...).From("market_data"), timeExpr, start, end).ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bar query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	var bars []types.Bar

	extras := make(map[string][]float64, len(extraNames))

	for rows.Next() {
		var timestamp sql.NullTime

		prices := make([]sql.NullFloat64, len(types.OHLCVColumns))
		extraValues := make([]sql.NullFloat64, len(extraNames))

		dest := []any{&timestamp}
		for i := range prices {
			dest = append(dest, &prices[i])
		}

		for i := range extraValues {
			dest = append(dest, &extraValues[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		if !timestamp.Valid {
			return nil, errors.Newf(errors.ErrCodeInvalidBarSeries, "bar %d has no timestamp", len(bars))
		}

		for i, price := range prices {
			if !price.Valid {
				return nil, errors.Newf(errors.ErrCodeInvalidBarSeries, "bar %d has no %s value", len(bars), types.OHLCVColumns[i])
			}
		}

		bars = append(bars, types.Bar{
			Time:   timestamp.Time,
			Open:   prices[0].Float64,
			High:   prices[1].Float64,
			Low:    prices[2].Float64,
			Close:  prices[3].Float64,
			Volume: prices[4].Float64,
		})

		for i, name := range extraNames {
			value := math.NaN()
			if extraValues[i].Valid {
				value = extraValues[i].Float64
			}

			extras[name] = append(extras[name], value)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read bars", err)
	}

	series, err := NewSeries(bars, extras)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Loaded bar series",
		zap.String("path", d.path),
		zap.Int("bars", series.Len()),
		zap.Strings("extra_columns", extraNames),
	)

	return series, nil
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}
