package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the embedded schema migrations to the database at dsn.
// steps limits how many migrations run; 0 runs all of them.
//
// Postcondition: Returns the resulting schema version and dirty flag.
// Having nothing to apply is not an error; changed reports whether anything ran.
func Migrate(dsn string, dir Direction, steps int) (version uint, dirty, changed bool, err error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, false, false, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return 0, false, false, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch dir {
	case Up:
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case Down:
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return 0, false, false, fmt.Errorf("invalid direction %q: must be %q or %q", dir, Up, Down)
	}

	changed = true
	if errors.Is(err, migrate.ErrNoChange) {
		changed, err = false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("migrating %s: %w", dir, err)
	}

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, changed, nil
	}
	if err != nil {
		return 0, false, changed, fmt.Errorf("reading schema version: %w", err)
	}
	return version, dirty, changed, nil
}
