// guard реализует криптографические примитивы второго фактора:
// одноразовые guard-коды (TOTP-схема платформы), подписи мобильных
// подтверждений и device id.
//
// Все функции пакета — чистые и детерминированные для фиксированных
// (секрет, время, тег): это требуется и для тестов, и для совпадения
// с серверной проверкой платформы.
package guard

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedSecret — секрет не является корректной base64-строкой.
// Это ошибка конфигурации: не ретраится, всплывает немедленно.
var ErrMalformedSecret = errors.New("malformed base64 secret")

const (
	// codeBucketSeconds — ширина временного окна одноразового кода.
	codeBucketSeconds = 30

	// codeChars — алфавит одноразовых кодов, зафиксирован платформой.
	codeChars = "23456789BCDFGHJKMNPQRTVWXY"

	// codeLength — длина одноразового кода в символах.
	codeLength = 5
)

// TwoFactorCode генерирует одноразовый guard-код для момента времени at.
//
// Схема: HMAC-SHA1 по big-endian uint64 счётчику окна (unix/30),
// динамическая трункация по младшему полубайту последнего байта дайджеста
// (4-байтовое big-endian окно со сброшенным знаковым битом), далее
// пятикратное деление по модулю алфавита.
func TwoFactorCode(sharedSecret string, at time.Time) (string, error) {
	const op = "guard.TwoFactorCode"

	key, err := decodeSecret(sharedSecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(at.Unix()/codeBucketSeconds))

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	digest := mac.Sum(nil)

	begin := digest[len(digest)-1] & 0xF
	full := binary.BigEndian.Uint32(digest[begin:begin+4]) & 0x7FFFFFFF

	var code strings.Builder
	code.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		code.WriteByte(codeChars[full%uint32(len(codeChars))])
		full /= uint32(len(codeChars))
	}

	return code.String(), nil
}

// TwoFactorCodeWindow возвращает коды для окна ±n соседних интервалов
// вокруг at (центральный код — первым). Используется вызывающей стороной
// для пробы при рассинхронизации часов с сервером; сама политика пробы
// ядру не принадлежит.
func TwoFactorCodeWindow(sharedSecret string, at time.Time, n int) ([]string, error) {
	const op = "guard.TwoFactorCodeWindow"

	codes := make([]string, 0, 2*n+1)

	center, err := TwoFactorCode(sharedSecret, at)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	codes = append(codes, center)

	for i := 1; i <= n; i++ {
		shift := time.Duration(i*codeBucketSeconds) * time.Second
		for _, t := range []time.Time{at.Add(-shift), at.Add(shift)} {
			c, err := TwoFactorCode(sharedSecret, t)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			codes = append(codes, c)
		}
	}

	return codes, nil
}

// ConfirmationKey генерирует подпись мобильного подтверждения для тега tag
// и момента времени at.
//
// В отличие от одноразового кода, метка времени не квантуется: она
// передаётся серверу рядом с подписью. Дайджест HMAC-SHA1 по
// big-endian uint64(unix) ++ байты тега кодируется base64 целиком,
// без трункации.
func ConfirmationKey(identitySecret, tag string, at time.Time) (string, error) {
	const op = "guard.ConfirmationKey"

	key, err := decodeSecret(identitySecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	buf := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(buf, uint64(at.Unix()))
	buf = append(buf, tag...)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DeviceID детерминированно выводит идентификатор мобильного устройства
// из steam id. Эндпоинты подтверждений требуют его в параметрах запроса.
func DeviceID(steamID int64) string {
	sum := sha1.Sum([]byte(strconv.FormatInt(steamID, 10)))
	hexed := fmt.Sprintf("%x", sum)

	return "android:" + strings.Join([]string{
		hexed[:8], hexed[8:12], hexed[12:16], hexed[16:20], hexed[20:32],
	}, "-")
}

// decodeSecret декодирует base64-секрет (стандартный алфавит, с паддингом).
func decodeSecret(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, ErrMalformedSecret
	}

	return key, nil
}
