// redact маскирует чувствительные значения перед записью в лог:
// guard-секреты, токены и логин аккаунта никогда не попадают в лог целиком.
package redact

// AccountName оставляет первые два символа логина.
func AccountName(s string) string {
	if len(s) <= 2 {
		return "***"
	}

	return s[:2] + "***"
}

// Secret скрывает guard-секрет полностью, включая префикс.
func Secret() string { return "[REDACTED_SECRET]" }

// Token — плейсхолдер вместо access/refresh-токена.
func Token() string { return "[REDACTED_TOKEN]" }

// Password — плейсхолдер вместо пароля.
func Password() string { return "[REDACTED_PASSWORD]" }
