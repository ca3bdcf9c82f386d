package auth

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2 performs the client-credentials grant.
type OAuth2 struct {
	*tokenCache
	config *clientcredentials.Config
	client *http.Client
}

func NewOAuth2(config *clientcredentials.Config, client *http.Client) *OAuth2 {
	o := &OAuth2{config: config, client: client}
	o.tokenCache = newTokenCache("oauth2", o.requestToken)
	return o
}

func (o *OAuth2) requestToken(ctx context.Context) (*Credential, error) {
	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}

	token, err := o.config.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status := retrieveErr.Response.StatusCode
			if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
				return nil, &transientError{err: err}
			}
			return nil, &AuthenticationError{Method: "oauth2", StatusCode: status, Err: err}
		}
		return nil, err
	}

	return &Credential{
		Headers:   map[string]string{"Authorization": token.Type() + " " + token.AccessToken},
		ExpiresAt: token.Expiry,
	}, nil
}
