package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// IdentityClient talks to the external identity-token verification
// service. It is only consulted by whoami when the bearer token is not a
// local session token.
type IdentityClient struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// NewIdentityClient creates a client for the identity service. The client
// secret comes from the environment so it never lands in config files.
func NewIdentityClient(baseURL, clientID string) *IdentityClient {
	return &IdentityClient{
		BaseURL:      baseURL,
		ClientID:     clientID,
		ClientSecret: os.Getenv("IDENTITY_CLIENT_SECRET"),
		HTTPClient:   &http.Client{},
	}
}

// VerifyToken exchanges a bearer token for the verified primary email
// address it belongs to.
func (ic *IdentityClient) VerifyToken(ctx context.Context, token string) (string, error) {
	url := fmt.Sprintf("%s/token/verify", ic.BaseURL)

	body, _ := json.Marshal(map[string]string{
		"client_id":     ic.ClientID,
		"client_secret": ic.ClientSecret,
		"token":         token,
	})

	respBody, statusCode, err := ic.makeRequest(ctx, http.MethodPost, url, "application/json", body)
	if err != nil {
		return "", err
	}
	if statusCode != http.StatusOK {
		return "", fmt.Errorf("token verification failed, status: %d", statusCode)
	}

	var verification struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(respBody, &verification); err != nil {
		return "", fmt.Errorf("failed to decode verification response: %w", err)
	}
	if verification.Email == "" {
		return "", fmt.Errorf("verification response carried no email")
	}

	return verification.Email, nil
}

func (ic *IdentityClient) makeRequest(ctx context.Context, method, url, contentType string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := ic.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return respBody, resp.StatusCode, fmt.Errorf("error response: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return respBody, resp.StatusCode, nil
}
