// Package citations extracts, normalizes, and validates URLs surfaced by
// wave output, producing the cid-keyed records in citations.jsonl (spec.md
// §4.9). Normalization is pure and offline; Validate is the only part of
// this package that touches the network: it fetches only in "online" mode,
// and resolves host names for the SSRF check in both online modes.
package citations

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/ioutil"
)

var urlRe = regexp.MustCompile(`https?://[^\s)\]<>"']+`)

// ExtractURLs scans md for bare http(s) URLs, recording one Mention per
// occurrence with its ordinal position so FoundBy lists stay stable and
// capped at 20 per normalized URL by the caller.
func ExtractURLs(md string, wave int, perspectiveID string) []Mention {
	var mentions []Mention
	lines := strings.Split(md, "\n")
	ordinal := 0
	for _, line := range lines {
		for _, raw := range urlRe.FindAllString(line, -1) {
			ordinal++
			mentions = append(mentions, Mention{
				URLOriginal:   strings.TrimRight(raw, ".,;:)"),
				Wave:          wave,
				PerspectiveID: perspectiveID,
				SourceLine:    strings.TrimSpace(line),
				Ordinal:       ordinal,
			})
		}
	}
	return mentions
}

// Mention is a local alias of artifacts.Mention kept for readability within
// this package; callers should use artifacts.Mention directly when crossing
// a package boundary into runstore.
type Mention = artifacts.Mention

// utmParamPrefixes are query parameters normalization strips entirely,
// since they vary per-share-link without changing the resource identified.
var utmParamPrefixes = []string{"utm_", "fbclid", "gclid", "mc_cid", "mc_eid"}

// Normalize lower-cases the host, strips the default port for the scheme,
// strips a trailing "/" from any non-root path (an empty path becomes "/"),
// removes tracking query
// parameters, and re-sorts remaining query parameters so two URLs that
// differ only in parameter order normalize identically.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	u.Host = stripDefaultPort(u.Scheme, u.Host)
	u.User = nil // userinfo is never retained in a normalized or logged URL
	u.Fragment = ""

	if u.Path == "" {
		u.Path = "/"
	} else if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		for _, prefix := range utmParamPrefixes {
			if strings.HasPrefix(lower, prefix) {
				q.Del(key)
				break
			}
		}
	}
	u.RawQuery = sortedQuery(q)

	return u.String(), nil
}

func stripDefaultPort(scheme, host string) string {
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		return strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

func sortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for j, v := range vals {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// CID derives a citation's stable identifier from its normalized URL, per
// spec.md §4.9: "cid_<sha256(normalized_url)>".
func CID(normalizedURL string) string {
	digest := ioutil.DigestString(normalizedURL)
	return "cid_" + strings.TrimPrefix(digest, "sha256:")
}
