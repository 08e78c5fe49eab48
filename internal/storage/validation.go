package storage

import (
	"context"
	"fmt"

	"github.com/fintrax/pettyflow/internal/common"
)

// validateContext rejects nil or already-canceled contexts before any
// database work begins.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("%w: nil context", common.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return nil
}

// validateString rejects empty required string arguments.
func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s must not be empty", common.ErrValidation, name)
	}
	return nil
}
