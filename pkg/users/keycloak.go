package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"shortlink/pkg/logging"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrUserExists means the username is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers any failed signin.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// KeycloakConfig locates the realm this service manages accounts in.
type KeycloakConfig struct {
	AuthServerURL string
	Realm         string
	ClientID      string
	ClientSecret  string
}

// KeycloakClient is the identity-provider glue: accounts live in Keycloak,
// this service only relays signup and signin. Admin operations authenticate
// with the client-credentials grant; user signin uses the resource-owner
// password grant.
type KeycloakClient struct {
	config KeycloakConfig
	admin  *clientcredentials.Config
	oauth  *oauth2.Config
	logger *logging.Logger
}

// TokenData is what signin hands back to the browser.
type TokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func NewKeycloakClient(config KeycloakConfig, logger *logging.Logger) *KeycloakClient {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		config.AuthServerURL, config.Realm)

	return &KeycloakClient{
		config: config,
		admin: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     tokenURL,
		},
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
		logger: logger,
	}
}

// CreateUser registers a new account in the realm via the admin REST API.
func (c *KeycloakClient) CreateUser(ctx context.Context, username, password string) error {
	client := c.admin.Client(ctx)

	exists, err := c.usernameTaken(ctx, client, username)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}

	payload := map[string]any{
		"username": username,
		"enabled":  true,
		"credentials": []map[string]any{
			{"type": "password", "value": password, "temporary": false},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.adminUsersURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		c.logger.LogAuthEvent(ctx, "signup", username, true)
		return nil
	case http.StatusConflict:
		return ErrUserExists
	default:
		c.logger.LogAuthEvent(ctx, "signup", username, false)
		return fmt.Errorf("create user: unexpected status %d", resp.StatusCode)
	}
}

// SignIn exchanges credentials for tokens with the password grant.
func (c *KeycloakClient) SignIn(ctx context.Context, username, password string) (*TokenData, error) {
	token, err := c.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		c.logger.LogAuthEvent(ctx, "signin", username, false)
		return nil, ErrInvalidCredentials
	}

	c.logger.LogAuthEvent(ctx, "signin", username, true)

	expiresIn := int64(0)
	if v := token.Extra("expires_in"); v != nil {
		if f, ok := v.(float64); ok {
			expiresIn = int64(f)
		}
	}

	return &TokenData{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (c *KeycloakClient) usernameTaken(ctx context.Context, client *http.Client, username string) (bool, error) {
	lookup := fmt.Sprintf("%s?username=%s&exact=true", c.adminUsersURL(), url.QueryEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup, nil)
	if err != nil {
		return false, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("lookup user: unexpected status %d", resp.StatusCode)
	}

	var found []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (c *KeycloakClient) adminUsersURL() string {
	return fmt.Sprintf("%s/admin/realms/%s/users", c.config.AuthServerURL, c.config.Realm)
}
