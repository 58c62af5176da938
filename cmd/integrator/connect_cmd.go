package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"integrator-go/internal/logs"
	"integrator-go/internal/poller"
	"integrator-go/internal/provider"
)

const connectTimeout = 5 * time.Minute

// apiClient is a thin client for a running orchestrator daemon.
type apiClient struct {
	base string
	http *http.Client
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the integrator daemon running at %s? %w", c.base, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("unexpected response from daemon: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("%s", envelope.Error)
	}
	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

func getConnectCommand() *cobra.Command {
	var (
		serverURL  string
		authMethod string
		noBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "connect <integration>",
		Short: "Connect an integration and wait for authorization to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]

			logger, err := logs.SetupCommandLogger(false, logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()

			client := &apiClient{base: serverURL, http: &http.Client{Timeout: 30 * time.Second}}

			var result provider.StartResult
			body := map[string]string{}
			if authMethod != "" {
				body["authMethod"] = authMethod
			}
			if err := client.do(ctx, http.MethodPost, "/integrations/connect/"+name, body, &result); err != nil {
				return err
			}

			if result.Connected {
				fmt.Println(orDefault(result.Message, name+" is connected"))
				return nil
			}

			authURL := result.AuthURL
			if result.RequiresOpenCode {
				authURL = result.OpenCodeURL
			}
			if authURL == "" {
				return fmt.Errorf("daemon returned no authorization URL for %s", name)
			}

			fmt.Printf("Authorize %s in your browser:\n  %s\n", name, authURL)
			if !noBrowser {
				if err := openBrowser(authURL); err != nil {
					logger.Warn("Failed to open browser", zap.Error(err))
				}
			}

			session := poller.NewPollingSession(name, connectProbe(client, name, result.RequiresOpenCode), logger)
			defer session.Close()

			fmt.Println("Waiting for authorization to complete...")
			if err := session.Wait(ctx); err != nil {
				return fmt.Errorf("connect %s: %w", name, err)
			}
			fmt.Printf("%s connected\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8090", "Base URL of the integrator daemon")
	cmd.Flags().StringVar(&authMethod, "auth-method", "", "Auth method to use when the integration offers more than one")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")

	return cmd
}

// connectProbe observes flow completion through the daemon. Open-code flows
// have a completion endpoint; redirect flows are observed through the
// catalog's connection status.
func connectProbe(client *apiClient, name string, openCode bool) poller.Probe {
	return func(ctx context.Context) (*provider.CompleteResult, error) {
		if openCode {
			var result provider.CompleteResult
			if err := client.do(ctx, http.MethodPost, "/integrations/connect/"+name+"/complete", nil, &result); err != nil {
				return nil, err
			}
			return &result, nil
		}

		var entry struct {
			IsConnected bool `json:"isConnected"`
		}
		if err := client.do(ctx, http.MethodGet, "/integrations/catalog/"+name, nil, &entry); err != nil {
			return nil, err
		}
		return &provider.CompleteResult{Connected: entry.IsConnected}, nil
	}
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// openBrowser opens the given URL in the default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
