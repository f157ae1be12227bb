// transport определяет способность выполнять HTTP-запросы к платформе
// и управлять cookies по доменам. Ядро зависит только от интерфейса
// Transport: конкретный HTTP-клиент поставляется коллаборатором
// (по умолчанию — Client из этого же пакета).
//
// Политика таймаутов и ретраев пакету не принадлежит: сетевые ошибки
// отдаются вызывающему как есть.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pribylovaa/go-steam-client/internal/models"
)

// Request — описание одного HTTP-запроса.
// Query добавляется к URL, Form кодируется в тело (для POST).
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// Response — статус, заголовки и полностью прочитанное тело ответа.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON декодирует тело ответа в v.
func (r *Response) JSON(v any) error {
	const op = "transport.Response.JSON"

	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Transport — способность, которую ядро требует от HTTP-слоя:
// выполнение запросов и перечисление/установка cookies по домену.
type Transport interface {
	// Do выполняет запрос и возвращает полностью прочитанный ответ.
	Do(ctx context.Context, req *Request) (*Response, error)
	// Cookies возвращает известные cookies домена.
	Cookies(domain string) []models.Cookie
	// SetCookies устанавливает cookies домена (заменяя одноимённые).
	SetCookies(domain string, cookies []models.Cookie)
}
