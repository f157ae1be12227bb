package models

// Identity — неизменяемое описание одного аккаунта Steam.
//
// Описание:
//   - SteamID — 64-битный идентификатор аккаунта;
//   - AccountName — логин аккаунта;
//   - SharedSecret — base64-секрет для генерации одноразовых guard-кодов;
//   - IdentitySecret — base64-секрет для подписи мобильных подтверждений
//     (опционален: без него недоступны только операции подтверждений).
//
// Секреты поставляются вызывающей стороной и ядром никогда не создаются,
// не изменяются и не сохраняются.
type Identity struct {
	SteamID        int64
	AccountName    string
	SharedSecret   string
	IdentitySecret string
}

// HasIdentitySecret сообщает, доступна ли подпись подтверждений.
func (i Identity) HasIdentitySecret() bool {
	return i.IdentitySecret != ""
}
