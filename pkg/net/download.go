// Package net fetches remote input files.
package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrorURLNotFound = errors.New("URL not found")

// IsURL reports whether path names an http or https resource.
func IsURL(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func getResp(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("User-Agent", clientAgent)

	return GetHTTPClient().Do(req) //nolint:gosec // URL comes from the operator's config or flags
}

// Open starts downloading url and returns its body. The caller closes it.
func Open(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := getResp(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		PrintHTTPResponse(resp)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrorURLNotFound, url)
		}
		return nil, fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	return resp.Body, nil
}
