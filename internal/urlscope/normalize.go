// Package urlscope holds the pure URL identity and crawl-scope rules: how a
// URL is canonicalized into a dedup key, how hosts are grouped into root
// domains, and which discovered links are worth crawling and archiving.
package urlscope

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNotAbsolute is returned when a URL lacks a scheme or host.
var ErrNotAbsolute = errors.New("url must have a scheme and host")

var trackingParams = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
	"gclid",
	"fbclid",
	"ref",
	"src",
	"cid",
	"referrer",
}

var indexPages = []string{"index.html", "index.htm", "default.html", "default.htm"}

// Normalize canonicalizes rawURL into the key used for deduplication and queue
// identity. It lowercases the scheme, host, and path, collapses duplicate
// slashes, drops index pages, trailing slashes, fragments, default ports and
// tracking parameters, and sorts the remaining query parameters.
// Normalize(Normalize(u)) == Normalize(u) for every u it accepts.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = stripDefaultPort(u.Scheme, strings.ToLower(u.Host))
	u.Fragment = ""
	u.RawFragment = ""

	u.Path = normalizePath(u.Path)
	u.RawPath = ""

	// Queries that do not parse cleanly, such as ones using ';' separators,
	// are kept verbatim so distinct URLs keep distinct keys.
	if q, err := url.ParseQuery(u.RawQuery); err == nil {
		for _, key := range trackingParams {
			q.Del(key)
		}
		u.RawQuery = q.Encode()
	}
	u.ForceQuery = false

	return u.String(), nil
}

func normalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.ToLower(p)
	for {
		p = strings.TrimRight(p, "/")
		stripped := stripIndexPage(p)
		if stripped == p {
			break
		}
		p = stripped
	}
	if p == "" {
		return "/"
	}
	return p
}

// stripIndexPage removes one trailing index page segment from p.
func stripIndexPage(p string) string {
	for _, page := range indexPages {
		if strings.HasSuffix(p, "/"+page) {
			return strings.TrimSuffix(p, page)
		}
	}
	return p
}

func stripDefaultPort(scheme, host string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}

// RootDomain groups hosts by a coarse owner heuristic: a leading "www." is
// stripped and hosts with more than two labels keep only the last two. It is
// not a public-suffix lookup, so "example.co.uk" maps to "co.uk".
func RootDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		return strings.Join(labels[len(labels)-2:], ".")
	}
	return host
}

// Seed validates and canonicalizes an operator-supplied URL. A missing scheme
// defaults to http. It returns the normalized URL and its root domain.
func Seed(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrNotAbsolute
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse seed: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("seed %q: %w", raw, ErrNotAbsolute)
	}
	normalized, err := Normalize(raw)
	if err != nil {
		return "", "", err
	}
	return normalized, RootDomain(u.Host), nil
}

// ScopePath derives the directory-form scope anchor for a normalized URL:
// "/" for the site root, otherwise the path with a trailing slash.
func ScopePath(normalizedURL string) string {
	u, err := url.Parse(normalizedURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/"
	}
	if strings.HasSuffix(u.Path, "/") {
		return u.Path
	}
	return u.Path + "/"
}

// Resolve joins href against the page it was found on and returns the
// absolute URL. Only http and https links are returned.
func Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	switch strings.ToLower(abs.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}
