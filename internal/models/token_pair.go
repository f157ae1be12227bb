package models

// TokenPair — пара токенов авторизованной сессии.
//
// Описание:
//   - Access — короткоживущий JWT для авторизации запросов к платформе;
//   - Refresh — долгоживущий JWT для выпуска новых access-токенов.
//
// Инвариант: пара либо полностью отсутствует (неавторизованное состояние),
// либо полностью присутствует. Меняется только login/refresh, очищается logout.
type TokenPair struct {
	Access  string
	Refresh string
}

// IsZero — признак отсутствия пары.
func (p TokenPair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}
