package models

import "time"

// UserState carries the dialog position of one user through the
// presentation layer. It lives in the state repository, not in a
// process-wide map, so request handlers stay stateless.
type UserState struct {
	UserID      int64
	CurrentStep string
	TempData    map[string]interface{}
}

func (s *UserState) GetInt64(key string) int64 {
	if s.TempData == nil {
		return 0
	}
	val, ok := s.TempData[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (s *UserState) GetString(key string) string {
	if s.TempData == nil {
		return ""
	}
	if str, ok := s.TempData[key].(string); ok {
		return str
	}
	return ""
}

func (s *UserState) GetTime(key string) time.Time {
	if s.TempData == nil {
		return time.Time{}
	}
	switch v := s.TempData[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
