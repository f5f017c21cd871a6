package blob

import (
	memorystore "equiploan/internal/infra/blob/memory"
)

// NewMemory returns a process-local Store for tests and ephemeral runs.
func NewMemory() Store { return memorystore.New() }
