package guard

import "time"

// Clock — источник текущего времени. Выделен в интерфейс,
// чтобы генерация кодов и проверки истечения токенов были тестируемыми.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock возвращает Clock на основе системных часов.
func SystemClock() Clock { return systemClock{} }
