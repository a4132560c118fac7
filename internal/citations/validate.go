package citations

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

// Fetcher is the seam Validate uses to reach a URL in "online" mode. The
// orchestrator injects an *http.Client-backed implementation in production
// and a fixture-backed one in tests; this package never constructs an
// http.Client itself.
type Fetcher interface {
	Head(ctx context.Context, rawURL string) (status int, err error)
}

// OfflineFixtures looks up a normalized URL's pre-recorded validation
// result, used in "offline" mode (spec.md §4.9) so a deterministic test
// suite never makes a real network call.
type OfflineFixtures map[string]artifacts.OfflineFixtureEntry

// Validator validates normalized URLs according to RunConfig's
// citation_validation_mode, wrapping any network-backed Fetcher in a
// circuit breaker so a flaky host can't stall the whole citation pipeline.
type Validator struct {
	mode     artifacts.CitationValidationMode
	fixtures OfflineFixtures
	fetcher  Fetcher
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewValidator builds a Validator for mode. fixtures is consulted only in
// "offline" mode; fetcher is only called in "online" mode. A nil logger is
// replaced with zap.NewNop().
func NewValidator(mode artifacts.CitationValidationMode, fixtures OfflineFixtures, fetcher Fetcher, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "citation-fetch",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Validator{mode: mode, fixtures: fixtures, fetcher: fetcher, breaker: cb, log: log}
}

// Validate resolves one normalized URL into a Citation record.
//
// Expectations:
//   - offline mode: looks up fixtures[normalizedURL]; a missing entry
//     validates as CitationInvalid with a note, never silently "valid"
//   - online mode: calls fetcher through the circuit breaker; a private,
//     loopback, or link-local host is rejected as CitationBlocked before
//     any network call is attempted (SSRF policy)
//   - online_dry_run mode: applies the same SSRF check as online, then
//     records every other URL as CitationBlocked without fetching it; no
//     fixture capture is produced
func (v *Validator) Validate(ctx context.Context, normalizedURL, originalURL, cid string) artifacts.Citation {
	now := nowRFC3339()
	c := artifacts.Citation{NormalizedURL: normalizedURL, URLOriginal: originalURL, CID: cid, CheckedAt: now}

	switch v.mode {
	case artifacts.CitationModeOffline:
		entry, ok := v.fixtures[normalizedURL]
		if !ok {
			c.Status = artifacts.CitationInvalid
			c.Notes = "no offline fixture for this URL"
			return c
		}
		applyFixture(&c, entry)
		return c
	case artifacts.CitationModeOnline, artifacts.CitationModeOnlineDryRun:
		if blocked, reason := isSSRFBlocked(normalizedURL); blocked {
			c.Status = artifacts.CitationBlocked
			c.Notes = reason
			return c
		}
		if v.mode == artifacts.CitationModeOnlineDryRun {
			c.Status = artifacts.CitationBlocked
			c.Notes = "online dry-run: fetch ladder not executed"
			return c
		}
		if v.fetcher == nil {
			c.Status = artifacts.CitationInvalid
			c.Notes = "no fetcher configured for online validation"
			return c
		}
		result, err := v.breaker.Execute(func() (any, error) {
			return fetchWithRetry(ctx, v.fetcher, originalURL)
		})
		if err != nil {
			v.log.Warn("citation fetch failed", zap.String("url", redactUserinfo(originalURL)), zap.Error(err))
			c.Status = artifacts.CitationInvalid
			c.Notes = "fetch failed: " + err.Error()
			return c
		}
		status := result.(int)
		c.HTTPStatus = &status
		c.Status = statusToCitationStatus(status)
		return c
	default:
		c.Status = artifacts.CitationInvalid
		c.Notes = "unknown citation validation mode"
		return c
	}
}

// fetchWithRetry retries a transient Head failure a bounded number of times
// with exponential backoff before giving up — a single dropped connection on
// an otherwise healthy host shouldn't flip a citation to invalid, but a
// genuinely unreachable host still fails fast enough for the circuit breaker
// to count it.
func fetchWithRetry(ctx context.Context, f Fetcher, rawURL string) (any, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	var status int
	err := backoff.Retry(func() error {
		s, err := f.Head(ctx, rawURL)
		if err != nil {
			return err
		}
		status = s
		return nil
	}, b)
	return status, err
}

func applyFixture(c *artifacts.Citation, entry artifacts.OfflineFixtureEntry) {
	c.Status = entry.Status
	c.HTTPStatus = entry.HTTPStatus
	c.Title = entry.Title
	c.Publisher = entry.Publisher
	c.EvidenceSnippet = entry.EvidenceSnippet
	c.Notes = entry.Notes
}

func statusToCitationStatus(httpStatus int) artifacts.CitationStatus {
	switch {
	case httpStatus == 402 || httpStatus == 403:
		return artifacts.CitationPaywalled
	case httpStatus >= 200 && httpStatus < 300:
		return artifacts.CitationValid
	default:
		return artifacts.CitationInvalid
	}
}

// isSSRFBlocked rejects loopback, link-local, and private-range hosts
// before any request reaches them — citation targets come from agent
// output, which is untrusted input reaching into this process's network
// namespace.
func isSSRFBlocked(normalizedURL string) (bool, string) {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return true, "unparseable URL"
	}
	host := u.Hostname()
	if host == "localhost" {
		return true, "loopback host blocked"
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		// Can't resolve: not a policy decision either way, let the fetch
		// attempt surface the real error.
		return false, ""
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() {
			return true, "private/loopback/link-local address blocked"
		}
	}
	return false, ""
}

func redactUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}

func nowRFC3339() string { return timeNowUTC().Format(time.RFC3339) }

func timeNowUTC() time.Time { return time.Now().UTC() }

// HTTPFetcher is the production Fetcher, wrapping *http.Client with a
// bounded timeout so one slow host cannot stall the whole citation stage.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Head(ctx context.Context, rawURL string) (int, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// unsupportedModeError is returned by resolvers that reject an unsupported
// sensitivity→mode combination (spec.md §4.9 precedence chain).
func unsupportedModeError(mode string) *corerr.Error {
	return corerr.Newf(corerr.CodeInvalidArgs, "unsupported citation validation mode %q", mode)
}
