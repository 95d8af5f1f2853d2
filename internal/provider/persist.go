package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jurisprep/authd/internal/model"
)

// persistedSession is the on-disk token pair. Identity attributes are not
// stored; they are recovered from the access token claims on load.
type persistedSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (c *Client) persist(grant *model.Grant) error {
	if c.cfg.SessionFile == "" || grant == nil || grant.Session == nil {
		return nil
	}
	data, err := json.Marshal(persistedSession{
		AccessToken:  grant.Session.AccessToken,
		RefreshToken: grant.Session.RefreshToken,
		TokenType:    grant.Session.TokenType,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(c.cfg.SessionFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (c *Client) removePersisted() error {
	if c.cfg.SessionFile == "" {
		return nil
	}
	if err := os.Remove(c.cfg.SessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// loadPersisted restores the session saved by a previous run. An expired
// access token is kept as long as a refresh token exists; CurrentSession
// exchanges it on first use.
func (c *Client) loadPersisted() (*model.Grant, error) {
	if c.cfg.SessionFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.cfg.SessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var stored persistedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	if stored.AccessToken == "" {
		return nil, nil
	}

	expiresAt, err := c.tokens.ExpiresAt(stored.AccessToken)
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(time.Now()) && stored.RefreshToken == "" {
		return nil, nil
	}

	userID, claims, err := c.tokens.ParseAccessToken(stored.AccessToken)
	if err != nil {
		// Expired but refreshable: decode the subject without validation.
		if stored.RefreshToken == "" {
			return nil, err
		}
		session := &model.Session{
			AccessToken:  stored.AccessToken,
			RefreshToken: stored.RefreshToken,
			TokenType:    stored.TokenType,
			ExpiresAt:    expiresAt,
		}
		return &model.Grant{Session: session}, nil
	}

	session := &model.Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		UserID:       userID,
		ExpiresAt:    expiresAt,
	}
	identity := model.Identity{ID: userID, Email: claims.Email}
	return &model.Grant{Session: session, Identity: identity}, nil
}
