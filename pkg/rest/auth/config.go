package auth

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type Type string

const (
	TypeNone   Type = "none"
	TypeAPIKey Type = "api_key"
	TypeBearer Type = "bearer"
	TypeBasic  Type = "basic"
	TypeOAuth2 Type = "oauth2"
	TypeJWT    Type = "jwt"
)

// Config selects and configures an authenticator.
type Config struct {
	Type Type `json:"type,omitempty" validate:"omitempty,oneof=none api_key bearer basic oauth2 jwt"`

	// api_key
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
	Location string `json:"in,omitempty" validate:"omitempty,oneof=header query"`

	// bearer
	Token string `json:"token,omitempty"`

	// basic
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// oauth2 and jwt
	TokenURL       string            `json:"token_url,omitempty" validate:"omitempty,url"`
	ClientID       string            `json:"client_id,omitempty"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	Scopes         []string          `json:"scopes,omitempty"`
	EndpointParams map[string]string `json:"endpoint_params,omitempty"`
	// where client credentials go: "header" (default) or "params"
	AuthStyle string `json:"auth_style,omitempty" validate:"omitempty,oneof=header params"`

	// jwt
	Issuer     string `json:"issuer,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Algorithm  string `json:"algorithm,omitempty" validate:"omitempty,oneof=HS256 RS256"`
	SigningKey string `json:"signing_key,omitempty"`
	KeyID      string `json:"key_id,omitempty"`
	TokenTTL   int    `json:"token_ttl_seconds,omitempty" validate:"gte=0"`

	// Shared makes every stream use one authenticator and one token cache.
	Shared bool `json:"shared,omitempty"`
}

// New builds the authenticator described by config. client is used for token
// requests and may be nil.
func New(config Config, client *http.Client) (Authenticator, error) {
	switch config.Type {
	case "", TypeNone:
		return None{}, nil
	case TypeAPIKey:
		if config.Key == "" || config.Value == "" {
			return nil, fmt.Errorf("api_key auth requires key and value")
		}
		location := config.Location
		if location == "" {
			location = InHeader
		}
		return &APIKey{Name: config.Key, Value: config.Value, Location: location}, nil
	case TypeBearer:
		if config.Token == "" {
			return nil, fmt.Errorf("bearer auth requires token")
		}
		return &Bearer{Token: config.Token}, nil
	case TypeBasic:
		if config.Username == "" {
			return nil, fmt.Errorf("basic auth requires username")
		}
		return &Basic{Username: config.Username, Password: config.Password}, nil
	case TypeOAuth2:
		if config.TokenURL == "" || config.ClientID == "" {
			return nil, fmt.Errorf("oauth2 auth requires token_url and client_id")
		}
		style := oauth2.AuthStyleInHeader
		if config.AuthStyle == "params" {
			style = oauth2.AuthStyleInParams
		}
		params := make(map[string][]string, len(config.EndpointParams))
		for k, v := range config.EndpointParams {
			params[k] = []string{v}
		}
		return NewOAuth2(&clientcredentials.Config{
			ClientID:       config.ClientID,
			ClientSecret:   config.ClientSecret,
			TokenURL:       config.TokenURL,
			Scopes:         config.Scopes,
			EndpointParams: params,
			AuthStyle:      style,
		}, client), nil
	case TypeJWT:
		if config.TokenURL == "" || config.SigningKey == "" {
			return nil, fmt.Errorf("jwt auth requires token_url and signing_key")
		}
		return NewJWT(JWTConfig{
			TokenURL:  config.TokenURL,
			Issuer:    config.Issuer,
			Subject:   config.Subject,
			Audience:  config.Audience,
			Scopes:    config.Scopes,
			KeyID:     config.KeyID,
			Algorithm: config.Algorithm,
			Key:       config.SigningKey,
			TokenTTL:  time.Duration(config.TokenTTL) * time.Second,
		}, client)
	default:
		return nil, fmt.Errorf("unsupported auth type[%s]", config.Type)
	}
}
