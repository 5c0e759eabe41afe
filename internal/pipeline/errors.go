package pipeline

import (
	"fmt"

	"medthread/internal/util"
)

// PersistenceError is returned when the batch write failed twice. The backup at
// BackupPath holds every result and can be replayed.
type PersistenceError struct {
	BackupPath string
	Attempts   int
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist failed after %d attempts (recover with: annotate replay %s): %v", e.Attempts, e.BackupPath, e.Err)
}
func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == util.ErrPersistence }
