package repo

import (
	"database/sql"
	"fmt"
)

// expectOneRow turns a zero-row UPDATE into errNone.
func expectOneRow(res sql.Result, errNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errNone
	}
	return nil
}
