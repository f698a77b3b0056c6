package poller

import "time"

// ConnectionState состояние связи одного poller'а. Используется только для
// наблюдения и не влияет на расписание опроса. LastSuccessAt и LastErrorAt
// равны nil, пока не было ни одного успеха (ошибки).
type ConnectionState struct {
	Name                string     `json:"name"`
	Endpoint            string     `json:"endpoint"`
	Interval            string     `json:"interval"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastErrorAt         *time.Time `json:"lastErrorAt,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Requests            uint64     `json:"requests"`
	Skipped             uint64     `json:"skipped"`
}

// Connected true, если последний завершённый запрос был успешным
func (s ConnectionState) Connected() bool {
	return s.LastSuccessAt != nil && s.ConsecutiveFailures == 0
}

func (s *ConnectionState) recordSuccess(at time.Time) {
	s.LastSuccessAt = &at
	s.ConsecutiveFailures = 0
}

func (s *ConnectionState) recordFailure(at time.Time, err error) {
	s.LastErrorAt = &at
	s.LastError = err.Error()
	s.ConsecutiveFailures++
}
