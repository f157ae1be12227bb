package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/pribylovaa/go-steam-client/internal/models"
)

// defaultUserAgent используется, если вызывающая сторона не задала свой.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client — реализация Transport поверх net/http.
//
// Помимо стандартного cookiejar (который участвует в самих запросах),
// клиент ведёт зеркало cookies по доменам: jar из стандартной библиотеки
// не отдаёт path/expires при перечислении, а снапшоту сессии эти атрибуты
// нужны.
type Client struct {
	http      *http.Client
	userAgent string

	mu      sync.RWMutex
	cookies map[string]map[string]models.Cookie // domain → name → cookie
}

// Option — настройка клиента.
type Option func(*Client)

// WithUserAgent задаёт значение заголовка User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient подменяет базовый http.Client (прокси, таймауты — снаружи).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient создаёт клиент с собственным cookiejar.
func NewClient(opts ...Option) (*Client, error) {
	const op = "transport.NewClient"

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Client{
		http:      &http.Client{Jar: jar},
		userAgent: defaultUserAgent,
		cookies:   make(map[string]map[string]models.Cookie),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		c.http.Jar = jar
	}

	return c, nil
}

// Do выполняет запрос: Query присоединяется к URL, Form кодируется в тело.
// Тело ответа читается целиком, cookies из Set-Cookie попадают в зеркало.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	const op = "transport.Client.Do"

	rawURL := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Form) > 0 {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for k, vv := range req.Header {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.Form) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.recordCookies(httpReq.URL, resp.Cookies())

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Cookies возвращает копию известных cookies домена.
func (c *Client) Cookies(domain string) []models.Cookie {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byName := c.cookies[domain]
	if len(byName) == 0 {
		return nil
	}

	out := make([]models.Cookie, 0, len(byName))
	for _, ck := range byName {
		out = append(out, ck)
	}

	return out
}

// SetCookies устанавливает cookies домена: и в зеркало, и в jar,
// чтобы последующие запросы их отправляли.
func (c *Client) SetCookies(domain string, cookies []models.Cookie) {
	u := &url.URL{Scheme: "https", Host: domain, Path: "/"}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		path := ck.Path
		if path == "" {
			path = "/"
		}
		// Domain намеренно не выставляется: host-only cookie привязывается
		// к хосту URL, это работает и для доменов платформы, и в тестах.
		httpCookies = append(httpCookies, &http.Cookie{
			Name:    ck.Name,
			Value:   ck.Value,
			Path:    path,
			Expires: ck.Expires,
		})
	}
	c.http.Jar.SetCookies(u, httpCookies)

	c.mu.Lock()
	defer c.mu.Unlock()

	byName := c.cookies[domain]
	if byName == nil {
		byName = make(map[string]models.Cookie, len(cookies))
		c.cookies[domain] = byName
	}
	for _, ck := range cookies {
		byName[ck.Name] = ck
	}
}

// recordCookies фиксирует cookies из ответа в зеркале, ключ — хост запроса.
func (c *Client) recordCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	domain := u.Hostname()

	c.mu.Lock()
	defer c.mu.Unlock()

	byName := c.cookies[domain]
	if byName == nil {
		byName = make(map[string]models.Cookie, len(cookies))
		c.cookies[domain] = byName
	}

	for _, ck := range cookies {
		if ck.MaxAge < 0 {
			delete(byName, ck.Name)
			continue
		}

		path := ck.Path
		if path == "" {
			path = "/"
		}
		byName[ck.Name] = models.Cookie{
			Name:    ck.Name,
			Value:   ck.Value,
			Path:    path,
			Expires: ck.Expires,
		}
	}
}
