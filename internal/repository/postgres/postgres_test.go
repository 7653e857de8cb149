package postgres

import "github.com/jackc/pgx/v5/pgconn"

// pgconnUniqueViolation mimics the error PostgreSQL raises on a unique
// constraint collision.
var pgconnUniqueViolation = pgconn.PgError{Code: "23505"}
