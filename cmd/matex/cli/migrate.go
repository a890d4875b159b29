package cli

import (
	"errors"
	"fmt"
	"io"
)

// Migrator is the schema migration surface used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

// ErrUsage is returned for unknown or missing subcommands.
var ErrUsage = errors.New("usage: matex migrate up|down|version")

// RunMigrate executes one migrate subcommand and reports the result to out.
func RunMigrate(out io.Writer, m Migrator, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.Down(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
	default:
		return ErrUsage
	}
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	_, err = fmt.Fprintf(out, "schema version %d dirty=%t\n", version, dirty)
	return err
}
