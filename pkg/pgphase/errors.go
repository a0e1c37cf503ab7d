package pgphase

import (
	"errors"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// Sentinel errors for client construction.
var (
	// ErrMissingDatabaseURL is returned when no database URL is provided.
	ErrMissingDatabaseURL = errors.New("pgphase: database URL required")

	// ErrUnsupportedDriver is returned for a driver other than postgres or pgx.
	ErrUnsupportedDriver = errors.New("pgphase: unsupported driver")

	// ErrNoDatabase is returned by operations that need a connection on a
	// client built without one.
	ErrNoDatabase = errors.New("pgphase: no database connection")
)

// Code returns the stable error code carried by err, such as "E3005", or ""
// for errors without one.
func Code(err error) string {
	return string(alerr.GetErrorCode(err))
}
