package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 90 * time.Second}
}

// postJSON sends payload and returns the body of a 2xx response. Anything else
// comes back as a *StatusError so callers can classify it.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s encode request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read response: %w", provider, err)
	}
	if resp.StatusCode >= 400 {
		return nil, newStatusError(provider, resp, body)
	}
	return body, nil
}

// resolveKey prefers ANNOTATE_<PROVIDER>_KEY_<ALIAS> and falls back to the
// vendor's conventional variable.
func resolveKey(provider, alias, fallbackEnv string) string {
	if alias != "" {
		k := os.Getenv("ANNOTATE_" + strings.ToUpper(provider) + "_KEY_" + strings.ToUpper(alias))
		if k != "" {
			return k
		}
	}
	if fallbackEnv == "" {
		return ""
	}
	return os.Getenv(fallbackEnv)
}

func envBaseURL(provider, fallback string) string {
	if v := os.Getenv("ANNOTATE_" + strings.ToUpper(provider) + "_BASE_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return fallback
}
