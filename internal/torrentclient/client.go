// Package torrentclient wraps autobrr/go-qbittorrent with the
// login/health-check/re-login idiom qui uses for its own instance client
// (§4.I), generalized to a single always-on instance instead of qui's
// multi-instance pool.
package torrentclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/apperr"
)

// Config is the connection configuration for the qBittorrent instance.
type Config struct {
	Host     string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a thin, health-tracked wrapper around *qbt.Client.
type Client struct {
	qbt *qbt.Client

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
}

const defaultTimeout = 30 * time.Second

// asinTagPrefix namespaces the tag this package uses to self-heal
// torrent-hash associations when the monitor's own hash record goes stale
// (§4.J): a torrent tagged "asin:B0ABCDEF12" can be found again by tag
// even after qBittorrent assigns it a different hash (e.g. after a
// recheck).
const asinTagPrefix = "asin:"

// AsinTag returns the self-healing tag for a book identifier.
func AsinTag(asin string) string {
	return asinTagPrefix + asin
}

// New dials and logs into the instance. A connection failure here is soft
// (§4.I): the client is still returned, marked unhealthy, so the caller
// can retry later instead of treating a momentarily-down daemon as fatal.
func New(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	qc := qbt.NewClient(qbt.Config{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  int(timeout.Seconds()),
	})

	c := &Client{qbt: qc}

	loginCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := qc.LoginCtx(loginCtx); err != nil {
		log.Warn().Err(err).Str("host", cfg.Host).Msg("torrent client: initial login failed, instance unreachable")
		c.setHealthy(false)
		return c, nil
	}

	c.setHealthy(true)
	return c, nil
}

func (c *Client) setHealthy(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = v
	c.lastCheck = time.Now()
}

// Healthy reports the client's last known reachability.
func (c *Client) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// HealthCheck probes the instance, re-logging in and probing once more on
// any probe failure before giving up. A failure here is soft: it updates Healthy() but
// never returns a hard error the request state machine should surface to
// the user.
func (c *Client) HealthCheck(ctx context.Context) {
	if _, err := c.qbt.GetWebAPIVersionCtx(ctx); err != nil {
		if loginErr := c.qbt.LoginCtx(ctx); loginErr != nil {
			c.setHealthy(false)
			return
		}
		if _, err = c.qbt.GetWebAPIVersionCtx(ctx); err != nil {
			c.setHealthy(false)
			return
		}
	}
	c.setHealthy(true)
}

// AddOptions configures a newly added torrent.
type AddOptions struct {
	SavePath string
	Category string
	Tags     []string
}

func (o AddOptions) toMap() map[string]string {
	m := map[string]string{"skip_checking": "false"}
	if o.SavePath != "" {
		m["savepath"] = o.SavePath
	}
	if o.Category != "" {
		m["category"] = o.Category
	}
	if len(o.Tags) > 0 {
		joined := ""
		for i, t := range o.Tags {
			if i > 0 {
				joined += ","
			}
			joined += t
		}
		m["tags"] = joined
	}
	return m
}

// AddMagnet submits a magnet link. Returns apperr.Misconfigured when the
// instance is marked unhealthy, since there is no point attempting a call
// known to fail; the caller (the request state machine) treats this as a
// soft failure to retry, not a hard terminal one.
func (c *Client) AddMagnet(ctx context.Context, magnetURL string, opts AddOptions) error {
	if !c.Healthy() {
		return apperr.Misconfigured("torrent client: instance unreachable")
	}
	if err := c.qbt.AddTorrentFromUrlCtx(ctx, magnetURL, opts.toMap()); err != nil {
		return fmt.Errorf("add magnet: %w", err)
	}
	return nil
}

// AddTorrentFile submits a .torrent file's raw bytes.
func (c *Client) AddTorrentFile(ctx context.Context, data []byte, opts AddOptions) error {
	if !c.Healthy() {
		return apperr.Misconfigured("torrent client: instance unreachable")
	}
	if err := c.qbt.AddTorrentFromMemoryCtx(ctx, data, opts.toMap()); err != nil {
		return fmt.Errorf("add torrent file: %w", err)
	}
	return nil
}

// ByHash fetches a single torrent's current state, or nil if qBittorrent
// no longer knows about it (e.g. manually removed out of band).
func (c *Client) ByHash(ctx context.Context, hash string) (*qbt.Torrent, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{hash}})
	if err != nil {
		return nil, fmt.Errorf("get torrent: %w", err)
	}
	if len(torrents) == 0 {
		return nil, nil
	}
	return &torrents[0], nil
}

// ByTag finds torrents carrying the given tag, used by the monitor's
// self-healing lookup (§4.J) when a recorded hash no longer resolves.
func (c *Client) ByTag(ctx context.Context, tag string) ([]qbt.Torrent, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Tag: tag})
	if err != nil {
		return nil, fmt.Errorf("get torrents by tag: %w", err)
	}
	return torrents, nil
}

// ByCategory lists every torrent in the given category, the monitor's
// per-tick snapshot (§4.J step 2). An empty category lists everything the
// instance knows about.
func (c *Client) ByCategory(ctx context.Context, category string) ([]qbt.Torrent, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: category})
	if err != nil {
		return nil, fmt.Errorf("get torrents by category: %w", err)
	}
	return torrents, nil
}

// Delete removes a torrent, optionally also its downloaded files.
func (c *Client) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	if err := c.qbt.DeleteTorrentsCtx(ctx, []string{hash}, deleteFiles); err != nil {
		return fmt.Errorf("delete torrent: %w", err)
	}
	return nil
}

// AddTags appends tags to an already-added torrent, used to stamp the
// self-healing asin:<id> tag after a successful add.
func (c *Client) AddTags(ctx context.Context, hash string, tags ...string) error {
	if err := c.qbt.AddTagsCtx(ctx, []string{hash}, tags); err != nil {
		return fmt.Errorf("add tags: %w", err)
	}
	return nil
}
