package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres carries the server-side detail of a failed statement. pgx and lib/pq
// both appear here since migrations run on lib/pq and gorm on pgx.
type Postgres struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Diagnostics is the log-only breakdown of an error. It never reaches a client.
type Diagnostics struct {
	Message  string
	Code     Code
	Causes   []string
	Postgres *Postgres
}

func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	diag := Diagnostics{Message: err.Error(), Postgres: postgresCause(err)}
	if typed := As(err); typed != nil {
		diag.Code = typed.Code()
	}
	for cause := err; cause != nil; cause = stdErrors.Unwrap(cause) {
		diag.Causes = append(diag.Causes, fmt.Sprintf("%T: %v", cause, cause))
	}
	return diag
}

// Fields flattens the diagnostics into structured log fields.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Causes,
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.SQLState
		fields["pg_constraint"] = pg.Constraint
		fields["pg_table"] = pg.Table
		fields["pg_column"] = pg.Column
		fields["pg_detail"] = pg.Detail
		fields["pg_message"] = pg.Message
	}
	return fields
}

func postgresCause(err error) *Postgres {
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return &Postgres{
			SQLState:   pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &Postgres{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
