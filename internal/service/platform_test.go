package service

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/transport"
	"github.com/stretchr/testify/require"
)

const (
	testSteamID     = int64(76561198012345678)
	testAccountName = "trader01"
	testPassword    = "p@ssw0rd"
	testSecret      = "AAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

// signedToken выпускает JWT с заданным exp; подпись не проверяется клиентом.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	return s
}

// fakePlatform — httptest-сервер, имитирующий auth-эндпоинты платформы:
// RSA-ключ, цепочку входа, transfer, проверку живости, refresh и logout.
type fakePlatform struct {
	t   *testing.T
	srv *httptest.Server

	rsaKey *rsa.PrivateKey

	accessToken  string
	refreshToken string
	nextAccess   string

	// Ненулевое значение — соответствующий шаг отвечает этим X-Eresult.
	beginEresult int
	guardEresult int

	refreshDelay time.Duration

	mu         sync.Mutex
	liveValues map[string]bool

	refreshCalls int32
	logoutCalls  int32
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakePlatform{
		t:            t,
		rsaKey:       key,
		accessToken:  signedToken(t, time.Now().Add(time.Hour)),
		refreshToken: signedToken(t, time.Now().Add(90*24*time.Hour)),
		nextAccess:   signedToken(t, time.Now().Add(2*time.Hour)),
		liveValues:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/IAuthService/GetPasswordRSAPublicKey/v1/", p.handleRSAKey)
	mux.HandleFunc("/IAuthService/BeginAuthSessionViaCredentials/v1/", p.handleBeginAuth)
	mux.HandleFunc("/IAuthService/UpdateAuthSessionWithSteamGuardCode/v1/", p.handleGuardCode)
	mux.HandleFunc("/IAuthService/PollAuthSessionStatus/v1/", p.handlePoll)
	mux.HandleFunc("/jwt/finalizelogin", p.handleFinalize)
	mux.HandleFunc("/login/settoken", p.handleTransfer)
	mux.HandleFunc("/IAuthService/GenerateAccessTokenForApp/v1/", p.handleRefresh)
	mux.HandleFunc("/login/logout/", p.handleLogout)
	mux.HandleFunc("/", p.handleCommunity)

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)

	return p
}

func (p *fakePlatform) endpoints() Endpoints {
	return Endpoints{
		Community: p.srv.URL,
		Store:     p.srv.URL,
		Help:      p.srv.URL,
		Login:     p.srv.URL,
		API:       p.srv.URL,
	}
}

func (p *fakePlatform) loginSecureValue(access string) string {
	return fmt.Sprintf("%d%%7C%%7C%s", testSteamID, access)
}

func (p *fakePlatform) markLive(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liveValues[value] = true
}

func (p *fakePlatform) isLive(value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveValues[value]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (p *fakePlatform) handleRSAKey(w http.ResponseWriter, r *http.Request) {
	require.Equal(p.t, testAccountName, r.URL.Query().Get("account_name"))

	writeJSON(w, map[string]any{"response": map[string]any{
		"publickey_mod": hex.EncodeToString(p.rsaKey.N.Bytes()),
		"publickey_exp": fmt.Sprintf("%x", p.rsaKey.E),
		"timestamp":     "216000",
	}})
}

func (p *fakePlatform) handleBeginAuth(w http.ResponseWriter, r *http.Request) {
	if p.beginEresult != 0 {
		w.Header().Set("X-Eresult", strconv.Itoa(p.beginEresult))
		writeJSON(w, map[string]any{"response": map[string]any{}})
		return
	}

	require.NoError(p.t, r.ParseForm())
	cipher, err := base64.StdEncoding.DecodeString(r.PostForm.Get("encrypted_password"))
	require.NoError(p.t, err)
	plain, err := rsa.DecryptPKCS1v15(nil, p.rsaKey, cipher)
	require.NoError(p.t, err)
	require.Equal(p.t, testPassword, string(plain))
	require.Equal(p.t, "216000", r.PostForm.Get("encryption_timestamp"))

	writeJSON(w, map[string]any{"response": map[string]any{
		"client_id":  "client-1",
		"request_id": "request-1",
		"steamid":    strconv.FormatInt(testSteamID, 10),
	}})
}

func (p *fakePlatform) handleGuardCode(w http.ResponseWriter, r *http.Request) {
	if p.guardEresult != 0 {
		w.Header().Set("X-Eresult", strconv.Itoa(p.guardEresult))
	}

	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, "3", r.PostForm.Get("code_type"))
	require.Len(p.t, r.PostForm.Get("code"), 5)

	writeJSON(w, map[string]any{"response": map[string]any{}})
}

func (p *fakePlatform) handlePoll(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, "client-1", r.PostForm.Get("client_id"))
	require.Equal(p.t, "request-1", r.PostForm.Get("request_id"))

	writeJSON(w, map[string]any{"response": map[string]any{
		"refresh_token":          p.refreshToken,
		"access_token":           p.accessToken,
		"had_remote_interaction": false,
	}})
}

func (p *fakePlatform) handleFinalize(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, p.refreshToken, r.PostForm.Get("nonce"))

	writeJSON(w, map[string]any{
		"steamID": strconv.FormatInt(testSteamID, 10),
		"transfer_info": []map[string]any{{
			"url":    p.srv.URL + "/login/settoken",
			"params": map[string]any{"nonce": "transfer-nonce", "auth": "transfer-auth"},
		}},
	})
}

func (p *fakePlatform) handleTransfer(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, strconv.FormatInt(testSteamID, 10), r.PostForm.Get("steamID"))
	require.Equal(p.t, "transfer-nonce", r.PostForm.Get("nonce"))

	value := p.loginSecureValue(p.accessToken)
	p.markLive(value)

	http.SetCookie(w, &http.Cookie{Name: "steamLoginSecure", Value: value, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess-abc123", Path: "/"})
	writeJSON(w, map[string]any{"result": 1})
}

func (p *fakePlatform) handleRefresh(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&p.refreshCalls, 1)
	if p.refreshDelay > 0 {
		time.Sleep(p.refreshDelay)
	}

	require.NoError(p.t, r.ParseForm())
	require.Equal(p.t, strconv.FormatInt(testSteamID, 10), r.PostForm.Get("steamid"))
	require.NotEmpty(p.t, r.PostForm.Get("refresh_token"))

	p.markLive(p.loginSecureValue(p.nextAccess))
	writeJSON(w, map[string]any{"response": map[string]any{"access_token": p.nextAccess}})
}

func (p *fakePlatform) handleLogout(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&p.logoutCalls, 1)
	require.NoError(p.t, r.ParseForm())
	require.NotEmpty(p.t, r.PostForm.Get("sessionid"))
	w.WriteHeader(http.StatusOK)
}

// handleCommunity отвечает главной страницей: имя аккаунта в теле —
// только для живой сессии (известное значение steamLoginSecure).
func (p *fakePlatform) handleCommunity(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie("steamLoginSecure"); err == nil && p.isLive(ck.Value) {
		fmt.Fprintf(w, "<html><body>Logged in as %s</body></html>", testAccountName)
		return
	}

	fmt.Fprint(w, "<html><body>Welcome, guest</body></html>")
}

func newTestManager(t *testing.T, p *fakePlatform, password string) *Manager {
	t.Helper()

	tr, err := transport.NewClient()
	require.NoError(t, err)

	m, err := New(Config{
		Identity: models.Identity{
			SteamID:        testSteamID,
			AccountName:    testAccountName,
			SharedSecret:   testSecret,
			IdentitySecret: testSecret,
		},
		Password:  password,
		Endpoints: p.endpoints(),
	}, tr, nil)
	require.NoError(t, err)

	return m
}
