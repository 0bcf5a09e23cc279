package assets

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const defaultQuality = 90

// defaultPolicies is the built-in role→fallback-chain table. Fallback order
// is a product decision; configuration can override any role.
func defaultPolicies() map[Role][]CandidateSpec {
	return map[Role][]CandidateSpec{
		RolePoster: {
			{Kind: KindPrimary, Width: 480, Height: 720},
			{Kind: KindBackdrop, Width: 1920, Height: 1080},
		},
		RoleBackdrop: {
			{Kind: KindBackdrop, Width: 1920, Height: 1080},
			{Kind: KindPrimary, Width: 480, Height: 720},
		},
		RoleThumbnail: {
			{Kind: KindThumb, Width: 960, Height: 540},
			{Kind: KindBackdrop, Width: 1920, Height: 1080},
			{Kind: KindPrimary, Width: 480, Height: 720},
		},
		RoleEpisode: {
			{Kind: KindThumb, Width: 960, Height: 540},
			{Kind: KindBackdrop, Width: 1920, Height: 1080},
			{Kind: KindPrimary, Width: 480, Height: 720},
		},
		RoleSquare: {
			{Kind: KindPrimary, Width: 500, Height: 500},
		},
		RoleLibraryTile: {
			{Kind: KindPrimary, Width: 1600, Height: 900},
			{Kind: KindBackdrop, Width: 1920, Height: 1080},
			{Kind: KindPrimary, Width: 480, Height: 720},
		},
	}
}

// Resolver computes the ordered candidate URL list for an item and role.
// Resolution is pure string building: no network access, deterministic for
// identical inputs.
type Resolver struct {
	policies map[Role][]CandidateSpec
	quality  int
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithRolePolicy replaces the fallback chain for one role.
func WithRolePolicy(role Role, chain []CandidateSpec) ResolverOption {
	return func(r *Resolver) {
		if len(chain) > 0 {
			r.policies[role] = chain
		}
	}
}

// WithQuality sets the JPEG quality (1-100) requested from the server.
func WithQuality(quality int) ResolverOption {
	return func(r *Resolver) {
		if quality >= 1 && quality <= 100 {
			r.quality = quality
		}
	}
}

// NewResolver creates a Resolver with the built-in role table, applying any
// overrides.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		policies: defaultPolicies(),
		quality:  defaultQuality,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the ordered fallback list of candidate URLs for the item
// and role. An unconnected context yields an empty list; the caller treats
// that as unresolvable rather than an error. Duplicate (kind, dimensions)
// entries in a chain are collapsed so an already-failed URL is never retried
// under a different position.
func (r *Resolver) Resolve(itemID string, role Role, conn ConnectionContext) []Candidate {
	if !conn.Connected() || itemID == "" {
		return nil
	}

	chain, ok := r.policies[role]
	if !ok {
		chain = r.policies[RolePoster]
	}

	base := strings.TrimRight(conn.BaseURL, "/")

	candidates := make([]Candidate, 0, len(chain))
	seen := make(map[string]struct{}, len(chain))
	for _, spec := range chain {
		dedup := fmt.Sprintf("%s/%dx%d", spec.Kind, spec.Width, spec.Height)
		if _, dup := seen[dedup]; dup {
			continue
		}
		seen[dedup] = struct{}{}

		candidates = append(candidates, Candidate{
			URL:     r.buildURL(base, itemID, spec, conn.AccessToken),
			Kind:    spec.Kind,
			Width:   spec.Width,
			Height:  spec.Height,
			Quality: r.quality,
		})
	}
	return candidates
}

// buildURL constructs a Jellyfin image URL:
// {base}/Items/{id}/Images/{Kind}?maxWidth=&maxHeight=&quality=[&api_key=]
func (r *Resolver) buildURL(base, itemID string, spec CandidateSpec, token string) string {
	query := url.Values{}
	query.Set("maxWidth", strconv.Itoa(spec.Width))
	query.Set("maxHeight", strconv.Itoa(spec.Height))
	query.Set("quality", strconv.Itoa(r.quality))
	if token != "" {
		query.Set("api_key", token)
	}
	return fmt.Sprintf("%s/Items/%s/Images/%s?%s",
		base, url.PathEscape(itemID), spec.Kind, query.Encode())
}

// CacheKey canonicalizes a candidate URL for use as the cache identity in
// both tiers. The access token parameter is stripped so a token refresh does
// not fork the cache, the host is lowercased, and query parameters are
// sorted.
func CacheKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := u.Query()
	query.Del("api_key")

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(u.EscapedPath())
	sep := byte('?')
	for _, k := range keys {
		for _, v := range query[k] {
			b.WriteByte(sep)
			sep = '&'
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
