package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pribylovaa/go-steam-client/internal/guard"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/pkg/log"
	"github.com/pribylovaa/go-steam-client/internal/pkg/redact"
	"github.com/pribylovaa/go-steam-client/internal/transport"
)

// Коды EResult платформы, различаемые ядром. Остальные коды всплывают
// как ErrTransport с числовым значением в тексте.
const (
	eresultOK                    = 1
	eresultInvalidPassword       = 5
	eresultRateLimitExceeded     = 84
	eresultTwoFactorCodeMismatch = 88
)

func eresultToError(code int) error {
	switch code {
	case eresultOK:
		return nil
	case eresultInvalidPassword:
		return ErrInvalidCredentials
	case eresultRateLimitExceeded:
		return ErrRateLimited
	case eresultTwoFactorCodeMismatch:
		return ErrGuardCodeRejected
	default:
		return fmt.Errorf("%w: eresult %d", ErrTransport, code)
	}
}

// checkEResult извлекает код результата из заголовка X-Eresult
// и переводит его в ошибку таксономии. Отсутствие заголовка
// трактуется как успех: ответы с телом несут результат в самом теле.
func checkEResult(header http.Header) error {
	raw := header.Get("X-Eresult")
	if raw == "" {
		return nil
	}

	code, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed eresult header %q", ErrTransport, raw)
	}

	return eresultToError(code)
}

type rsaKeyResponse struct {
	Response struct {
		Mod       string `json:"publickey_mod"`
		Exp       string `json:"publickey_exp"`
		Timestamp string `json:"timestamp"`
	} `json:"response"`
}

type beginAuthResponse struct {
	Response struct {
		ClientID  string `json:"client_id"`
		RequestID string `json:"request_id"`
		SteamID   string `json:"steamid"`
	} `json:"response"`
}

type pollAuthResponse struct {
	Response struct {
		RefreshToken         string `json:"refresh_token"`
		AccessToken          string `json:"access_token"`
		HadRemoteInteraction bool   `json:"had_remote_interaction"`
	} `json:"response"`
}

type finalizeResponse struct {
	Error        int    `json:"error"`
	SteamID      string `json:"steamID"`
	TransferInfo []struct {
		URL    string         `json:"url"`
		Params map[string]any `json:"params"`
	} `json:"transfer_info"`
}

// Login выполняет полный вход с guard-кодом: RSA-шифрование пароля,
// начало auth-сессии, подтверждение device-кодом, выпуск пары токенов
// и перенос cookies на все домены платформы.
//
// Конкурентные вызовы сериализуются; повторный Login поверх живой
// сессии выполняет вход заново и атомарно замещает состояние.
func (m *Manager) Login(ctx context.Context) error {
	const op = "service.login.Login"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseLoggedOut {
		return fmt.Errorf("%s: %w", op, ErrLoggedOut)
	}

	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("account", redact.AccountName(m.cfg.Identity.AccountName)),
	)

	m.phase = PhaseAuthenticating
	if err := m.login(ctx, lg); err != nil {
		m.phase = PhaseUnauthenticated
		lg.Error("login_failed", slog.String("err", err.Error()))

		return fmt.Errorf("%s: %w", op, err)
	}

	m.phase = PhaseAuthenticated
	m.state.MarkAlive(m.clock.Now())
	lg.Info("login_succeeded")

	return nil
}

func (m *Manager) login(ctx context.Context, lg *slog.Logger) error {
	encrypted, encTS, err := m.encryptPassword(ctx)
	if err != nil {
		return err
	}

	begin, err := m.beginAuthSession(ctx, encrypted, encTS)
	if err != nil {
		return err
	}

	if err := m.submitGuardCode(ctx, begin); err != nil {
		return err
	}

	poll, err := m.pollAuthSession(ctx, begin)
	if err != nil {
		return err
	}

	fin, err := m.finalizeLogin(ctx, poll.Response.RefreshToken)
	if err != nil {
		return err
	}

	for _, transfer := range fin.TransferInfo {
		if err := m.performTransfer(ctx, transfer.URL, transfer.Params, fin.SteamID); err != nil {
			return err
		}
	}
	lg.Debug("transfers_completed", slog.Int("count", len(fin.TransferInfo)))

	m.ensureSessionID()

	pair := models.TokenPair{Access: poll.Response.AccessToken, Refresh: poll.Response.RefreshToken}
	m.tokens.Set(pair)
	m.state.CaptureFromTransport(m.tr)
	m.state.SetTokens(pair)

	return nil
}

// encryptPassword получает публичный RSA-ключ аккаунта и шифрует пароль
// (PKCS#1 v1.5, base64). Возвращает шифротекст и timestamp ключа.
func (m *Manager) encryptPassword(ctx context.Context) (string, string, error) {
	resp, err := m.doJSON(ctx, http.MethodGet, m.cfg.Endpoints.API+"/IAuthService/GetPasswordRSAPublicKey/v1/",
		url.Values{"account_name": {m.cfg.Identity.AccountName}}, nil)
	if err != nil {
		return "", "", err
	}

	var key rsaKeyResponse
	if err := resp.JSON(&key); err != nil {
		return "", "", fmt.Errorf("%w: decode rsa key: %v", ErrTransport, err)
	}

	mod, okMod := new(big.Int).SetString(key.Response.Mod, 16)
	exp, okExp := new(big.Int).SetString(key.Response.Exp, 16)
	if !okMod || !okExp || key.Response.Timestamp == "" {
		return "", "", fmt.Errorf("%w: malformed rsa key response", ErrTransport)
	}

	pub := &rsa.PublicKey{N: mod, E: int(exp.Int64())}
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(m.cfg.Password))
	if err != nil {
		return "", "", fmt.Errorf("%w: encrypt password: %v", ErrTransport, err)
	}

	return base64.StdEncoding.EncodeToString(cipher), key.Response.Timestamp, nil
}

func (m *Manager) beginAuthSession(ctx context.Context, encrypted, encTS string) (*beginAuthResponse, error) {
	form := url.Values{
		"account_name":         {m.cfg.Identity.AccountName},
		"encrypted_password":   {encrypted},
		"encryption_timestamp": {encTS},
		"remember_login":       {"true"},
		"persistence":          {"1"},
		"website_id":           {"Community"},
		"device_friendly_name": {"Mozilla/5.0 (Windows NT 10.0; Win64; x64)"},
		"platform_type":        {"2"},
	}

	resp, err := m.doJSON(ctx, http.MethodPost, m.cfg.Endpoints.API+"/IAuthService/BeginAuthSessionViaCredentials/v1/", nil, form)
	if err != nil {
		return nil, err
	}

	var begin beginAuthResponse
	if err := resp.JSON(&begin); err != nil {
		return nil, fmt.Errorf("%w: decode begin auth response: %v", ErrTransport, err)
	}
	if begin.Response.ClientID == "" || begin.Response.RequestID == "" {
		return nil, fmt.Errorf("%w: malformed begin auth response", ErrTransport)
	}

	return &begin, nil
}

// submitGuardCode вычисляет одноразовый код по shared-секрету на момент
// вызова и подтверждает им auth-сессию (code_type=3 — device code).
func (m *Manager) submitGuardCode(ctx context.Context, begin *beginAuthResponse) error {
	code, err := guard.TwoFactorCode(m.cfg.Identity.SharedSecret, m.clock.Now())
	if err != nil {
		return fmt.Errorf("guard code: %w", err)
	}

	form := url.Values{
		"client_id": {begin.Response.ClientID},
		"steamid":   {begin.Response.SteamID},
		"code_type": {"3"},
		"code":      {code},
	}

	_, err = m.doJSON(ctx, http.MethodPost, m.cfg.Endpoints.API+"/IAuthService/UpdateAuthSessionWithSteamGuardCode/v1/", nil, form)

	return err
}

func (m *Manager) pollAuthSession(ctx context.Context, begin *beginAuthResponse) (*pollAuthResponse, error) {
	form := url.Values{
		"client_id":  {begin.Response.ClientID},
		"request_id": {begin.Response.RequestID},
	}

	resp, err := m.doJSON(ctx, http.MethodPost, m.cfg.Endpoints.API+"/IAuthService/PollAuthSessionStatus/v1/", nil, form)
	if err != nil {
		return nil, err
	}

	var poll pollAuthResponse
	if err := resp.JSON(&poll); err != nil {
		return nil, fmt.Errorf("%w: decode poll response: %v", ErrTransport, err)
	}
	// Пустой refresh-токен после подтверждения кодом означает, что
	// платформа не приняла подтверждение.
	if poll.Response.HadRemoteInteraction || poll.Response.RefreshToken == "" {
		return nil, ErrGuardCodeRejected
	}

	return &poll, nil
}

func (m *Manager) finalizeLogin(ctx context.Context, refreshToken string) (*finalizeResponse, error) {
	form := url.Values{
		"nonce":     {refreshToken},
		"sessionid": {cookieValue(m.tr, hostOf(m.cfg.Endpoints.Community), "sessionid")},
		"redir":     {m.cfg.Endpoints.Community + "/login/home/?goto="},
	}

	resp, err := m.doJSON(ctx, http.MethodPost, m.cfg.Endpoints.Login+"/jwt/finalizelogin", nil, form)
	if err != nil {
		return nil, err
	}

	var fin finalizeResponse
	if err := resp.JSON(&fin); err != nil {
		return nil, fmt.Errorf("%w: decode finalize response: %v", ErrTransport, err)
	}
	if fin.Error != 0 {
		return nil, fmt.Errorf("%w: finalize login error %d", ErrTransport, fin.Error)
	}
	if len(fin.TransferInfo) == 0 {
		return nil, fmt.Errorf("%w: malformed finalize response", ErrTransport)
	}

	return &fin, nil
}

// performTransfer доставляет токены на домен платформы: домены имеют
// собственные steamLoginSecure-cookie, поэтому обходятся все transfer-URL.
func (m *Manager) performTransfer(ctx context.Context, transferURL string, params map[string]any, steamID string) error {
	form := url.Values{"steamID": {steamID}}
	for k, v := range params {
		form.Set(k, fmt.Sprint(v))
	}

	_, err := m.doJSON(ctx, http.MethodPost, transferURL, nil, form)

	return err
}

// ensureSessionID гарантирует наличие sessionid-cookie на домене
// сообщества: часть transfer-ответов её не выставляет.
func (m *Manager) ensureSessionID() {
	community := hostOf(m.cfg.Endpoints.Community)
	if cookieValue(m.tr, community, "sessionid") != "" {
		return
	}

	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	m.tr.SetCookies(community, []models.Cookie{{
		Name:  "sessionid",
		Value: hex.EncodeToString(buf),
		Path:  "/",
	}})
}

// doJSON выполняет запрос через транспорт и проверяет статус и X-Eresult.
// Сетевые ошибки оборачиваются в ErrTransport.
func (m *Manager) doJSON(ctx context.Context, method, rawURL string, query, form url.Values) (*transport.Response, error) {
	resp, err := m.tr.Do(ctx, &transport.Request{
		Method: method,
		URL:    rawURL,
		Query:  query,
		Form:   form,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if err := checkEResult(resp.Header); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	return resp, nil
}

func bodyContains(body []byte, needle string) bool {
	return needle != "" && bytes.Contains(body, []byte(needle))
}
