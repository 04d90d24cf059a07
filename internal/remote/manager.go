// Package remote refreshes the local target document from its declared
// remote source. Failures degrade to the last-known local document; they
// never abort the enclosing run.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"prefsync/internal/config"
)

const userAgent = "prefsync-remote-config"

// Manager fetches the remote document over HTTP.
type Manager struct {
	url    string
	client *http.Client
	log    *zap.SugaredLogger
}

func New(url string, log *zap.SugaredLogger) *Manager {
	return &Manager{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

// Fetch downloads and validates the remote document, returning its bytes.
func (m *Manager) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch remote config from %s: %w", m.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch remote config from %s: HTTP %d", m.url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	// Reject documents that do not parse before they overwrite anything.
	if _, err := config.Parse(data); err != nil {
		return nil, fmt.Errorf("remote config from %s: %w", m.url, err)
	}
	return data, nil
}

// MaybeRefresh refreshes the local document when the loaded document opts in
// via remote.autosync and skip is unset. On success the replacement document
// is returned; on fetch failure the run proceeds with doc unchanged. Only
// status, apply, and fetch ever call this.
func MaybeRefresh(ctx context.Context, cfg *config.Config, doc *config.Document, skip bool, log *zap.SugaredLogger) *config.Document {
	if skip || doc.Remote == nil || !doc.Remote.Autosync || doc.Remote.URL == "" {
		return doc
	}

	m := New(doc.Remote.URL, log)
	data, err := m.Fetch(ctx)
	if err != nil {
		log.Warnf("remote sync failed, proceeding with local config: %v", err)
		return doc
	}

	if err := cfg.SaveRaw(data); err != nil {
		log.Warnf("could not save refreshed config: %v", err)
		return doc
	}

	refreshed, err := config.Parse(data)
	if err != nil {
		// Fetch already validated; parse cannot realistically fail here.
		log.Warnf("refreshed config unusable: %v", err)
		return doc
	}
	log.Infof("synced config from %s", doc.Remote.URL)
	return refreshed
}
