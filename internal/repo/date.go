package repo

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Date is a timestamp stored as unix milliseconds, which compares and
// indexes the same way on SQLite and PostgreSQL.
type Date time.Time

func (d Date) Value() (driver.Value, error) {
	return time.Time(d).UnixMilli(), nil
}

func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date(time.Time{})
	case int64:
		*d = Date(time.UnixMilli(v).UTC())
	case []byte:
		ms, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return err
		}
		*d = Date(time.UnixMilli(ms).UTC())
	case string:
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*d = Date(time.UnixMilli(ms).UTC())
	default:
		return fmt.Errorf("cannot scan type %T into Date", value)
	}
	return nil
}

func (d Date) Time() time.Time {
	return time.Time(d)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// dayBucket is the UTC day number of t, used by the impressions unique index.
func dayBucket(t time.Time) int64 {
	return t.UnixMilli() / dayMillis
}

func timePtr(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}
