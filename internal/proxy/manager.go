// Package proxy finds a working public proxy for session warmup fallback.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"sjsage522/listingworker/logger"
	"sjsage522/listingworker/pkg/errors"
	"sjsage522/listingworker/pkg/retry"

	"github.com/go-resty/resty/v2"
)

// DefaultProbeURL answers 204 with an empty body and is cheap to hit
const DefaultProbeURL = "https://www.google.com/generate_204"

// Candidate is one entry of the public proxy list
type Candidate struct {
	Proxy       string  `json:"proxy"`
	Protocol    string  `json:"protocol"`
	Score       float64 `json:"score"`
	HTTPS       bool    `json:"https"`
	Geolocation struct {
		Country string `json:"country"`
	} `json:"geolocation"`
}

// Stats describes the last lookup
type Stats struct {
	Fetched    int
	Eligible   int
	Probed     int
	Working    string
	LastUpdate time.Time
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	SourceURL    string
	ProbeURL     string
	MaxAttempts  int
	ProbeTimeout time.Duration
	// Pause between failed probes.
	Pause time.Duration
	Sleep retry.SleepFunc
}

// Manager fetches the proxy list, filters it, and probes candidates one by one
type Manager struct {
	opts   Options
	client *resty.Client
	log    *logger.Logger

	mutex          sync.RWMutex
	working        string
	lastUpdate     time.Time
	updateInterval time.Duration
	stats          Stats

	rnd *mathrand.Rand
}

// NewManager creates a new proxy manager
func NewManager(opts Options) *Manager {
	if opts.ProbeURL == "" {
		opts.ProbeURL = DefaultProbeURL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 100
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.Pause < 0 {
		opts.Pause = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}

	client := resty.New()
	client.SetTimeout(10 * time.Second)

	return &Manager{
		opts:           opts,
		client:         client,
		log:            logger.ForSession().WithField("subsystem", "proxy"),
		updateInterval: 30 * time.Minute,
		rnd:            mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

// Candidates downloads the list and keeps the entries worth probing
func (m *Manager) Candidates(ctx context.Context) ([]string, error) {
	if m.opts.SourceURL == "" {
		return nil, errors.NewConfiguration("proxy source URL is empty", nil)
	}

	resp, err := m.client.R().SetContext(ctx).Get(m.opts.SourceURL)
	if err != nil {
		return nil, errors.NewNetwork("proxy", "fetch proxy list", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var list []Candidate
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		return nil, errors.NewParsing("proxy", "decode proxy list", err)
	}

	eligible := Filter(list)

	m.mutex.Lock()
	m.stats.Fetched = len(list)
	m.stats.Eligible = len(eligible)
	m.mutex.Unlock()

	m.log.Info().
		Int("fetched", len(list)).
		Int("eligible", len(eligible)).
		Msg("Loaded proxy list")

	return eligible, nil
}

// Filter keeps proxies with a score of at least 1, HTTPS support for HTTP
// proxies, and a protocol the transport can dial.
func Filter(list []Candidate) []string {
	var out []string
	for _, c := range list {
		if c.Proxy == "" || !strings.Contains(c.Proxy, ":") {
			continue
		}
		proto := strings.ToLower(c.Protocol)
		if proto == "" {
			proto = "http"
		}
		if strings.HasPrefix(proto, "http") && !c.HTTPS {
			continue
		}
		if c.Score < 1 {
			continue
		}

		addr := c.Proxy
		if !strings.Contains(addr, "://") {
			addr = proto + "://" + addr
		}
		// net/http dials http, https and socks5 proxies only
		if !(strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") || strings.HasPrefix(addr, "socks5://")) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// FindWorking returns a reachable proxy URL. A proxy found within the update
// interval is reused without probing again.
func (m *Manager) FindWorking(ctx context.Context) (string, error) {
	m.mutex.RLock()
	if m.working != "" && time.Since(m.lastUpdate) < m.updateInterval {
		working := m.working
		m.mutex.RUnlock()
		return working, nil
	}
	m.mutex.RUnlock()

	candidates, err := m.Candidates(ctx)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", errors.NewNetwork("proxy", "no proxies available after filtering", nil)
	}

	m.rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > m.opts.MaxAttempts {
		candidates = candidates[:m.opts.MaxAttempts]
	}

	for i, addr := range candidates {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		m.log.Debug().
			Int("attempt", i+1).
			Int("max", len(candidates)).
			Str("proxy", addr).
			Msg("Testing proxy")

		if m.Probe(ctx, addr) {
			m.mutex.Lock()
			m.working = addr
			m.lastUpdate = time.Now()
			m.stats.Probed = i + 1
			m.stats.Working = addr
			m.stats.LastUpdate = m.lastUpdate
			m.mutex.Unlock()

			m.log.Info().Str("proxy", addr).Int("attempt", i+1).Msg("Working proxy found")
			return addr, nil
		}

		if err := m.opts.Sleep(ctx, m.opts.Pause); err != nil {
			return "", err
		}
	}

	m.mutex.Lock()
	m.stats.Probed = len(candidates)
	m.stats.Working = ""
	m.mutex.Unlock()

	return "", errors.NewNetwork("proxy", fmt.Sprintf("no working proxy after %d probes", len(candidates)), nil)
}

// Probe reports whether the probe URL answers 200 or 204 through addr
func (m *Manager) Probe(ctx context.Context, addr string) bool {
	client := resty.New().
		SetTimeout(m.opts.ProbeTimeout).
		SetProxy(addr)

	resp, err := client.R().SetContext(ctx).Get(m.opts.ProbeURL)
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusNoContent
}

// Stats returns a copy of the last lookup's statistics
func (m *Manager) Stats() Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.stats
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() != http.StatusOK {
		return errors.NewNetwork("proxy", fmt.Sprintf("proxy list returned status %d", resp.StatusCode()), nil)
	}
	return nil
}
