package tools

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Time 存档时间戳：数据库读写走 GORM，JSON 输出 RFC3339
type Time time.Time

func Now() Time { return Time(time.Now()) }

func parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dbTimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (t *Time) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = Time{}
	case time.Time:
		*t = Time(v)
	case []byte:
		parsed, err := parseTime(string(v))
		if err != nil {
			return err
		}
		*t = Time(parsed)
	case string:
		parsed, err := parseTime(v)
		if err != nil {
			return err
		}
		*t = Time(parsed)
	default:
		return fmt.Errorf("tools.Time: cannot scan %T", value)
	}
	return nil
}

func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return time.Time(t), nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(t).Format(time.RFC3339))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" || s == "null" {
		*t = Time{}
		return nil
	}
	parsed, err := parseTime(s)
	if err != nil {
		return err
	}
	*t = Time(parsed)
	return nil
}

func (t Time) IsZero() bool { return time.Time(t).IsZero() }

func (t Time) String() string {
	if t.IsZero() {
		return "-"
	}
	return time.Time(t).Format(dbTimeLayout)
}
