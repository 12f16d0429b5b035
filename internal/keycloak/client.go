// Пакет keycloak — клиент Keycloak Admin REST API для notas-api:
// учётные записи пользователей realm и состояние realm для readiness.
// Доступ от имени service account (client credentials), токен кэшируется.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Ошибки Admin REST API, различаемые вызывающим кодом.
var (
	// ErrNotFound — пользователь или ресурс не найден (404).
	ErrNotFound = errors.New("keycloak: ресурс не найден")
	// ErrConflict — пользователь с таким username или email уже существует (409).
	ErrConflict = errors.New("keycloak: ресурс уже существует")
)

// APIError — неуспешный ответ Admin REST API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: Keycloak API вернул статус %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is сопоставляет статус ответа с ErrNotFound и ErrConflict.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

const tokenRefreshSkew = 30 * time.Second

// Client — HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Keycloak Admin REST API.
// httpClient может быть nil — тогда используется клиент с таймаутом 30s.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Аутентификация ---

func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// getToken отдаёт кэшированный токен service account, пока до его
// истечения больше tokenRefreshSkew; иначе запрашивает новый.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > tokenRefreshSkew {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}
	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Токен service account обновлён", slog.Time("expires_at", c.tokenExpiry))
	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- Admin REST ---

// call выполняет запрос к Admin REST API от имени service account.
// Ответ со статусом, отличным от want, превращается в *APIError.
// target == nil — тело ответа не читается.
func (c *Client) call(ctx context.Context, op, method, path string, payload any, want int, target any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: сериализация: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adminBaseURL()+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return nil, fmt.Errorf("%s: разбор ответа: %w", op, err)
		}
	}
	return resp, nil
}

func userPath(id string) string {
	return "/users/" + url.PathEscape(id)
}

// CreateUser заводит пользователя с постоянным паролем и возвращает его sub.
// Логин Keycloak — email в нижнем регистре. Занятый email даёт ErrConflict.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (string, error) {
	payload := userCreateRequest{
		Username:  strings.ToLower(u.Email),
		Email:     u.Email,
		FirstName: u.FullName,
		Enabled:   true,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: u.Password},
		},
		Attributes: map[string][]string{
			"fullName":   {u.FullName},
			"managed_by": {"notas-api"},
		},
	}

	resp, err := c.call(ctx, "CreateUser", http.MethodPost, "/users", payload, http.StatusCreated, nil)
	if err != nil {
		return "", err
	}

	// Location: .../users/{id}
	location := resp.Header.Get("Location")
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("CreateUser: нет ID пользователя в Location %q", location)
	}

	c.logger.Info("Пользователь создан в Keycloak", slog.String("user_id", id))
	return id, nil
}

// GetUser читает пользователя по sub.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	var user KeycloakUser
	if _, err := c.call(ctx, "GetUser", http.MethodGet, userPath(id), nil, http.StatusOK, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser удаляет пользователя. Используется для отката регистрации.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.call(ctx, "DeleteUser", http.MethodDelete, userPath(id), nil, http.StatusNoContent, nil)
	return err
}

// ResetPassword задаёт постоянный пароль.
func (c *Client) ResetPassword(ctx context.Context, id, password string) error {
	cred := credentialRepresentation{Type: "password", Value: password}
	_, err := c.call(ctx, "ResetPassword", http.MethodPut, userPath(id)+"/reset-password", cred, http.StatusNoContent, nil)
	return err
}

// SetUserEnabled разрешает или запрещает вход.
func (c *Client) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := c.call(ctx, "SetUserEnabled", http.MethodPut, userPath(id), userEnabledRequest{Enabled: enabled}, http.StatusNoContent, nil)
	if err != nil {
		return err
	}

	c.logger.Info("Вход пользователя в Keycloak переключён",
		slog.String("user_id", id),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// RealmInfo читает представление realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	var realm RealmRepresentation
	if _, err := c.call(ctx, "RealmInfo", http.MethodGet, "", nil, http.StatusOK, &realm); err != nil {
		return nil, err
	}
	return &realm, nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность Keycloak через realm info.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	if !realm.Enabled {
		return "degraded", fmt.Sprintf("Realm %s отключён", realm.Realm)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", realm.Realm)
}
