package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datazip-inc/resttap/utils"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

type JWTConfig struct {
	TokenURL  string
	Issuer    string
	Subject   string
	Audience  string
	Scopes    []string
	KeyID     string
	Algorithm string // HS256 or RS256
	// HMAC secret for HS256, PEM encoded private key for RS256
	Key      string
	TokenTTL time.Duration
}

// JWT signs an assertion and exchanges it for an access token at TokenURL.
type JWT struct {
	*tokenCache
	config  JWTConfig
	client  *http.Client
	signing jwt.SigningMethod
	key     any
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func NewJWT(config JWTConfig, client *http.Client) (*JWT, error) {
	j := &JWT{config: config, client: client}
	if j.client == nil {
		j.client = http.DefaultClient
	}
	if j.config.TokenTTL <= 0 {
		j.config.TokenTTL = time.Hour
	}

	switch strings.ToUpper(config.Algorithm) {
	case "", "HS256":
		j.signing = jwt.SigningMethodHS256
		j.key = []byte(config.Key)
	case "RS256":
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(config.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA private key: %s", err)
		}
		j.signing = jwt.SigningMethodRS256
		j.key = key
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm[%s]", config.Algorithm)
	}

	j.tokenCache = newTokenCache("jwt", j.requestToken)
	return j, nil
}

func (j *JWT) assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": j.config.Issuer,
		"iat": now.Unix(),
		"exp": now.Add(j.config.TokenTTL).Unix(),
		"jti": utils.ULID(),
	}
	if j.config.Subject != "" {
		claims["sub"] = j.config.Subject
	}
	if j.config.Audience != "" {
		claims["aud"] = j.config.Audience
	}
	if len(j.config.Scopes) > 0 {
		claims["scope"] = strings.Join(j.config.Scopes, " ")
	}

	token := jwt.NewWithClaims(j.signing, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.key)
}

func (j *JWT) requestToken(ctx context.Context) (*Credential, error) {
	now := j.now()
	assertion, err := j.assertion(now)
	if err != nil {
		return nil, &AuthenticationError{Method: "jwt", Err: fmt.Errorf("failed to sign assertion: %s", err)}
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthenticationError{Method: "jwt", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("failed to read token response: %s", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, &transientError{err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &AuthenticationError{Method: "jwt", StatusCode: resp.StatusCode, Err: fmt.Errorf("token endpoint rejected assertion: %s", strings.TrimSpace(string(body)))}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &AuthenticationError{Method: "jwt", StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid token response: %s", err)}
	}
	if token.AccessToken == "" {
		return nil, &AuthenticationError{Method: "jwt", StatusCode: resp.StatusCode, Err: fmt.Errorf("token response without access_token")}
	}

	tokenType := token.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	expiresAt := now.Add(j.config.TokenTTL)
	if token.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	return &Credential{
		Headers:   map[string]string{"Authorization": tokenType + " " + token.AccessToken},
		ExpiresAt: expiresAt,
	}, nil
}
