package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUserNotFound is returned when the directory has no record for the user id.
	ErrUserNotFound = errors.New("user not found in directory")
	// ErrNoPhoneNumber is returned when the user exists but has no phone number on record.
	ErrNoPhoneNumber = errors.New("no phone number on record")
)

// DirectoryClient resolves user ids against the identity directory over HTTP.
type DirectoryClient struct {
	baseURL     string
	countryCode string
	client      *http.Client
}

func NewDirectoryClient(baseURL, countryCode string) *DirectoryClient {
	return &DirectoryClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		countryCode: countryCode,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// Resolve looks up the user and returns a dialable E.164 phone number and a
// display name. Missing users and users without a phone number are reported
// via ErrUserNotFound and ErrNoPhoneNumber.
func (c *DirectoryClient) Resolve(ctx context.Context, userID string) (string, string, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", "", ErrUserNotFound
	default:
		return "", "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var ur userResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return "", "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if ur.PhoneNumber == "" {
		return "", "", ErrNoPhoneNumber
	}

	return NormalizeE164(ur.PhoneNumber, c.countryCode), ur.Name, nil
}

// NormalizeE164 rewrites a national-format number with a leading "0" into
// E.164 by substituting the configured country code. Numbers already in
// international format pass through unchanged.
func NormalizeE164(raw, countryCode string) string {
	n := strings.TrimSpace(raw)
	if strings.HasPrefix(n, "0") {
		return countryCode + n[1:]
	}
	return n
}
