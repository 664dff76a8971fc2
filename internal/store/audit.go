package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// LogAction appends a row to the audit log. Callers on the query path
// treat failures as non-fatal.
func (s *Store) LogAction(ctx context.Context, actor, action string, details map[string]interface{}) error {
	if actor == "" || action == "" {
		return fmt.Errorf("actor and action required")
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	detailBytes, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO audit_log (id, actor, action, details, created_at)
VALUES ($1,$2,$3,$4,NOW())
`, uuid.NewString(), actor, action, detailBytes)
	return err
}
