package db

import (
	"strconv"
	"strings"
)

// Dialect names the SQL flavour a *sql.DB speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a config value onto a Dialect; anything unknown is
// treated as sqlite.
func ParseDialect(s string) Dialect {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
