package store

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tile-leaderboard/internal/config"
)

// sqliteTimeLayout sorts lexically in chronological order for UTC values.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// dialect captures the SQL differences between the supported drivers
type dialect struct {
	name             string
	numbered         bool
	idColumn         string
	timestampType    string
	trueLiteral      string
	caseFoldLike     string
	tableExistsQuery string
}

var (
	sqliteDialect = &dialect{
		name:             config.DriverSQLite,
		idColumn:         "INTEGER PRIMARY KEY AUTOINCREMENT",
		timestampType:    "TIMESTAMP",
		trueLiteral:      "1",
		caseFoldLike:     "LIKE",
		tableExistsQuery: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
	}
	postgresDialect = &dialect{
		name:             config.DriverPostgres,
		numbered:         true,
		idColumn:         "BIGSERIAL PRIMARY KEY",
		timestampType:    "TIMESTAMPTZ",
		trueLiteral:      "TRUE",
		caseFoldLike:     "ILIKE",
		tableExistsQuery: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
	}
)

// rebind rewrites ? placeholders into $n for drivers that need it
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// groupConcat aggregates expr into a comma separated list
func (d *dialect) groupConcat(expr string, distinct bool) string {
	if d.numbered {
		if distinct {
			return "STRING_AGG(DISTINCT " + expr + ", ',')"
		}
		return "STRING_AGG(" + expr + ", ',')"
	}
	if distinct {
		// SQLite only allows the default separator together with DISTINCT.
		return "GROUP_CONCAT(DISTINCT " + expr + ")"
	}
	return "GROUP_CONCAT(" + expr + ", ',')"
}

// likePrefix escapes the LIKE wildcards in prefix and appends one;
// queries pair it with ESCAPE '\'
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// timeArg converts a timestamp into the driver's bind value
func (d *dialect) timeArg(t time.Time) any {
	t = t.UTC().Truncate(time.Second)
	if d.numbered {
		return t
	}
	return t.Format(sqliteTimeLayout)
}

// isUniqueViolation reports whether err is a unique constraint failure
func (d *dialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// Primary code only when extended result codes are off.
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
