package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	gogithub "github.com/google/go-github/v57/github"

	"integrator-go/internal/accounts"
)

const (
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	linearGraphqlURL  = "https://api.linear.app/graphql"
	atlassianMeURL    = "https://api.atlassian.com/me"
)

// GitHubIdentity resolves the authenticated GitHub user.
func GitHubIdentity() IdentityFunc {
	return func(ctx context.Context, client *http.Client) (accounts.Account, error) {
		user, _, err := gogithub.NewClient(client).Users.Get(ctx, "")
		if err != nil {
			return accounts.Account{}, err
		}
		return accounts.Account{
			ID:    strconv.FormatInt(user.GetID(), 10),
			Login: user.GetLogin(),
			Email: user.GetEmail(),
		}, nil
	}
}

// GoogleIdentity resolves the authenticated Google user via the userinfo
// endpoint.
func GoogleIdentity() IdentityFunc {
	return func(ctx context.Context, client *http.Client) (accounts.Account, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
		if err != nil {
			return accounts.Account{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return accounts.Account{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return accounts.Account{}, fmt.Errorf("userinfo request returned %d: %s", resp.StatusCode, body)
		}

		var info struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return accounts.Account{}, fmt.Errorf("failed to decode userinfo: %w", err)
		}
		return accounts.Account{ID: info.ID, Email: info.Email}, nil
	}
}

// JiraIdentity resolves the authenticated Atlassian user for Jira's OAuth
// mode.
func JiraIdentity() IdentityFunc {
	return func(ctx context.Context, client *http.Client) (accounts.Account, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, atlassianMeURL, nil)
		if err != nil {
			return accounts.Account{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return accounts.Account{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return accounts.Account{}, fmt.Errorf("me request returned %d: %s", resp.StatusCode, body)
		}

		var me struct {
			AccountID string `json:"account_id"`
			Email     string `json:"email"`
			Name      string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
			return accounts.Account{}, fmt.Errorf("failed to decode me response: %w", err)
		}
		return accounts.Account{ID: me.AccountID, Login: me.Name, Email: me.Email}, nil
	}
}

// LinearIdentity resolves the authenticated Linear user via the viewer query.
func LinearIdentity() IdentityFunc {
	return func(ctx context.Context, client *http.Client) (accounts.Account, error) {
		query := map[string]string{"query": "{ viewer { id name email } }"}
		payload, err := json.Marshal(query)
		if err != nil {
			return accounts.Account{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, linearGraphqlURL, bytes.NewReader(payload))
		if err != nil {
			return accounts.Account{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return accounts.Account{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return accounts.Account{}, fmt.Errorf("viewer query returned %d: %s", resp.StatusCode, body)
		}

		var result struct {
			Data struct {
				Viewer struct {
					ID    string `json:"id"`
					Name  string `json:"name"`
					Email string `json:"email"`
				} `json:"viewer"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return accounts.Account{}, fmt.Errorf("failed to decode viewer response: %w", err)
		}
		return accounts.Account{
			ID:    result.Data.Viewer.ID,
			Login: result.Data.Viewer.Name,
			Email: result.Data.Viewer.Email,
		}, nil
	}
}
