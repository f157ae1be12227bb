// confirm реализует подпись и выполнение мобильных подтверждений:
// список ожидающих подтверждений и их пакетное одобрение/отклонение.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pribylovaa/go-steam-client/internal/guard"
	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/pribylovaa/go-steam-client/internal/pkg/log"
	"github.com/pribylovaa/go-steam-client/internal/service"
	"github.com/pribylovaa/go-steam-client/internal/transport"
)

// ErrNoIdentitySecret — у аккаунта нет identity-секрета, подпись
// подтверждений невозможна.
var ErrNoIdentitySecret = errors.New("identity secret is not set")

// Теги действий подтверждений.
const (
	TagList   = "conf"
	TagAllow  = "allow"
	TagCancel = "cancel"
)

// Signature — подпись одного логического действия: ключ и timestamp,
// по которому он вычислен. Пара используется целиком — пересчёт
// ключа под другой timestamp делает подпись недействительной.
type Signature struct {
	Key       string
	Timestamp int64
}

// DecideResult — исход решения по одному подтверждению из пакета.
type DecideResult struct {
	ID  int64
	Err error
}

// Signer подписывает действия подтверждений identity-секретом аккаунта
// и выполняет их через транспорт с cookies живой сессии.
type Signer struct {
	identity models.Identity
	deviceID string
	tr       transport.Transport
	clock    guard.Clock

	communityURL string
}

// NewSigner создаёт подписанта подтверждений. Identity-секрет обязателен.
func NewSigner(identity models.Identity, tr transport.Transport, communityURL string, clock guard.Clock) (*Signer, error) {
	const op = "confirm.NewSigner"

	if !identity.HasIdentitySecret() {
		return nil, fmt.Errorf("%s: %w", op, ErrNoIdentitySecret)
	}
	if clock == nil {
		clock = guard.SystemClock()
	}

	return &Signer{
		identity:     identity,
		deviceID:     guard.DeviceID(identity.SteamID),
		tr:           tr,
		clock:        clock,
		communityURL: communityURL,
	}, nil
}

// Sign выдаёт подпись действия по тегу: ключ и timestamp вычисляются
// от одного момента времени, по одной паре на логическое действие.
func (s *Signer) Sign(tag string) (Signature, error) {
	const op = "confirm.Sign"

	now := s.clock.Now()
	key, err := guard.ConfirmationKey(s.identity.IdentitySecret, tag, now)
	if err != nil {
		return Signature{}, fmt.Errorf("%s: %w", op, err)
	}

	return Signature{Key: key, Timestamp: now.Unix()}, nil
}

func (s *Signer) signedQuery(tag string) (url.Values, error) {
	sig, err := s.Sign(tag)
	if err != nil {
		return nil, err
	}

	return url.Values{
		"p":   {s.deviceID},
		"a":   {strconv.FormatInt(s.identity.SteamID, 10)},
		"k":   {sig.Key},
		"t":   {strconv.FormatInt(sig.Timestamp, 10)},
		"m":   {"android"},
		"tag": {tag},
	}, nil
}

type listResponse struct {
	Success  bool   `json:"success"`
	NeedAuth bool   `json:"needauth"`
	Message  string `json:"message"`
	Conf     []struct {
		ID           string   `json:"id"`
		Nonce        string   `json:"nonce"`
		CreatorID    string   `json:"creator_id"`
		Type         int      `json:"type"`
		Headline     string   `json:"headline"`
		Summary      []string `json:"summary"`
		CreationTime int64    `json:"creation_time"`
	} `json:"conf"`
}

type opResponse struct {
	Success  bool   `json:"success"`
	NeedAuth bool   `json:"needauth"`
	Message  string `json:"message"`
}

// ListPending возвращает список ожидающих подтверждений. Ответ
// needauth означает, что сессия мертва — всплывает как
// service.ErrSessionExpired.
func (s *Signer) ListPending(ctx context.Context) ([]models.Confirmation, error) {
	const op = "confirm.ListPending"

	query, err := s.signedQuery(TagList)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := s.tr.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    s.communityURL + "/mobileconf/getlist",
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, service.ErrTransport, err)
	}

	var list listResponse
	if err := resp.JSON(&list); err != nil {
		return nil, fmt.Errorf("%s: %w: decode list response: %v", op, service.ErrTransport, err)
	}
	if !list.Success {
		if list.NeedAuth {
			return nil, fmt.Errorf("%s: %w", op, service.ErrSessionExpired)
		}

		return nil, fmt.Errorf("%s: %w: %s", op, service.ErrTransport, list.Message)
	}

	confs := make([]models.Confirmation, 0, len(list.Conf))
	for _, c := range list.Conf {
		id, err := strconv.ParseInt(c.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: malformed confirmation id %q", op, service.ErrTransport, c.ID)
		}
		creator, err := strconv.ParseInt(c.CreatorID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: malformed creator id %q", op, service.ErrTransport, c.CreatorID)
		}

		summary := ""
		if len(c.Summary) > 0 {
			summary = c.Summary[0]
		}

		confs = append(confs, models.Confirmation{
			ID:           id,
			Nonce:        c.Nonce,
			CreatorID:    creator,
			Type:         models.ConfirmationTypeOf(c.Type),
			Headline:     c.Headline,
			Summary:      summary,
			CreationTime: time.Unix(c.CreationTime, 0),
		})
	}

	log.From(ctx).Debug("confirmations_listed",
		slog.String("op", op),
		slog.Int("count", len(confs)),
	)

	return confs, nil
}

// Decide выполняет решение по пакету подтверждений одним запросом
// (allow=true — одобрить, иначе отклонить) и возвращает поэлементные
// исходы. При отказе пакетной операции каждое подтверждение
// добивается отдельным запросом, чтобы исходы были именно поэлементными.
func (s *Signer) Decide(ctx context.Context, confs []models.Confirmation, allow bool) ([]DecideResult, error) {
	const op = "confirm.Decide"

	if len(confs) == 0 {
		return nil, nil
	}

	tag := TagCancel
	if allow {
		tag = TagAllow
	}

	results := make([]DecideResult, len(confs))
	for i, c := range confs {
		results[i].ID = c.ID
	}

	batchErr, err := s.decideBatch(ctx, confs, tag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if batchErr == nil {
		return results, nil
	}

	// Пакет отвергнут целиком; выясняем судьбу каждого подтверждения.
	log.From(ctx).Warn("confirmation_batch_rejected",
		slog.String("op", op),
		slog.String("err", batchErr.Error()),
	)

	for i, c := range confs {
		results[i].Err = s.decideOne(ctx, c, tag)
	}

	return results, nil
}

// decideBatch отправляет multiajaxop. Первая ошибка — ошибка уровня
// запроса (транспорт, мёртвая сессия), вторая — отказ самой операции.
func (s *Signer) decideBatch(ctx context.Context, confs []models.Confirmation, tag string) (error, error) {
	form, err := s.signedQuery(tag)
	if err != nil {
		return nil, err
	}
	form.Set("op", tag)
	for _, c := range confs {
		form.Add("cid[]", strconv.FormatInt(c.ID, 10))
		form.Add("ck[]", c.Nonce)
	}

	resp, err := s.tr.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    s.communityURL + "/mobileconf/multiajaxop",
		Form:   form,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrTransport, err)
	}

	var out opResponse
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("%w: decode op response: %v", service.ErrTransport, err)
	}
	if out.NeedAuth {
		return nil, service.ErrSessionExpired
	}
	if !out.Success {
		return fmt.Errorf("batch op rejected: %s", out.Message), nil
	}

	return nil, nil
}

type detailsResponse struct {
	Success  bool   `json:"success"`
	NeedAuth bool   `json:"needauth"`
	Message  string `json:"message"`
	HTML     string `json:"html"`
}

// Details возвращает html-детали подтверждения как есть, без разбора.
// Тег подписи включает id подтверждения.
func (s *Signer) Details(ctx context.Context, confID int64) (string, error) {
	const op = "confirm.Details"

	id := strconv.FormatInt(confID, 10)
	query, err := s.signedQuery("details" + id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := s.tr.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    s.communityURL + "/mobileconf/details/" + id,
		Query:  query,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, service.ErrTransport, err)
	}

	var out detailsResponse
	if err := resp.JSON(&out); err != nil {
		return "", fmt.Errorf("%s: %w: decode details response: %v", op, service.ErrTransport, err)
	}
	if out.NeedAuth {
		return "", fmt.Errorf("%s: %w", op, service.ErrSessionExpired)
	}
	if !out.Success {
		return "", fmt.Errorf("%s: %w: %s", op, service.ErrTransport, out.Message)
	}

	return out.HTML, nil
}

func (s *Signer) decideOne(ctx context.Context, conf models.Confirmation, tag string) error {
	form, err := s.signedQuery(tag)
	if err != nil {
		return err
	}
	form.Set("op", tag)
	form.Set("cid", strconv.FormatInt(conf.ID, 10))
	form.Set("ck", conf.Nonce)

	resp, err := s.tr.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    s.communityURL + "/mobileconf/ajaxop",
		Query:  form,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrTransport, err)
	}

	var out opResponse
	if err := resp.JSON(&out); err != nil {
		return fmt.Errorf("%w: decode op response: %v", service.ErrTransport, err)
	}
	if out.NeedAuth {
		return service.ErrSessionExpired
	}
	if !out.Success {
		return fmt.Errorf("op rejected: %s", out.Message)
	}

	return nil
}
