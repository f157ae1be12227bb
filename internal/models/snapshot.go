package models

import "time"

// Cookie — одна cookie сессии в пределах домена платформы.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
}

// SnapshotTokens — токены в составе снапшота.
type SnapshotTokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Snapshot — сериализуемый слепок авторизованной сессии:
// cookies по доменам плюс пара токенов. Это единственный формат хранения,
// которым владеет ядро; export → import → export обязан давать
// структурно идентичный результат.
//
// Поле Tokens — указатель: отсутствие ключа "tokens" в снапшоте
// отличимо от пустых значений и трактуется как повреждение.
type Snapshot struct {
	Cookies map[string][]Cookie `json:"cookies"`
	Tokens  *SnapshotTokens     `json:"tokens"`
}

// Clone возвращает глубокую копию снапшота.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	out := &Snapshot{Cookies: make(map[string][]Cookie, len(s.Cookies))}
	for domain, cookies := range s.Cookies {
		cp := make([]Cookie, len(cookies))
		copy(cp, cookies)
		out.Cookies[domain] = cp
	}

	if s.Tokens != nil {
		t := *s.Tokens
		out.Tokens = &t
	}

	return out
}
