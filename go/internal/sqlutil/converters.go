package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable column types

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// FromSqlInt32 converts sql.NullInt32 to Go int with default
func FromSqlInt32(val sql.NullInt32, defaultVal int) int {
	if !val.Valid {
		return defaultVal
	}
	return int(val.Int32)
}

// ToNullRawMessage wraps raw JSON for a nullable JSONB column
func ToNullRawMessage(raw json.RawMessage) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: raw, Valid: len(raw) > 0}
}

// DecodeNullRawMessage unmarshals a nullable JSONB column into dst.
// A NULL column leaves dst untouched.
func DecodeNullRawMessage(val pqtype.NullRawMessage, dst interface{}) error {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return fmt.Errorf("failed to decode jsonb column: %w", err)
	}
	return nil
}
