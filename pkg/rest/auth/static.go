package auth

import (
	"context"
	"encoding/base64"
)

type None struct{}

func (None) Authenticate(_ context.Context) (*Credential, error) {
	return &Credential{}, nil
}

const (
	InHeader = "header"
	InQuery  = "query"
)

// APIKey injects a static key either as a header or as a query parameter.
type APIKey struct {
	Name     string
	Value    string
	Location string
}

func (a *APIKey) Authenticate(_ context.Context) (*Credential, error) {
	if a.Location == InQuery {
		return &Credential{Params: map[string]string{a.Name: a.Value}}, nil
	}
	return &Credential{Headers: map[string]string{a.Name: a.Value}}, nil
}

type Bearer struct {
	Token string
}

func (b *Bearer) Authenticate(_ context.Context) (*Credential, error) {
	return &Credential{Headers: map[string]string{"Authorization": "Bearer " + b.Token}}, nil
}

type Basic struct {
	Username string
	Password string
}

func (b *Basic) Authenticate(_ context.Context) (*Credential, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
	return &Credential{Headers: map[string]string{"Authorization": "Basic " + encoded}}, nil
}
