// Package snyk implements a vulnerability feed against the Snyk issues API.
//
// Snyk requires an API token and reports issues with their own SNYK-*
// identifiers; CVE and GHSA cross-references arrive in the identifiers
// object and become aliases on the normalized record.
package snyk

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	"github.com/trustmesh/trustmesh/pkg/cache"
	"github.com/trustmesh/trustmesh/pkg/clients"
	trusterrors "github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// DefaultEndpoint is the public Snyk API.
const DefaultEndpoint = "https://api.snyk.io"

const sourceName = "snyk"

// Client queries the Snyk vulnerability database.
type Client struct {
	*clients.Client
	baseURL string
}

// NewClient creates a Snyk feed client. The token is mandatory; Snyk has
// no anonymous access. An empty endpoint uses the public API.
func NewClient(endpoint, token string, c cache.Cache, ttl time.Duration) (*Client, error) {
	if token == "" {
		return nil, trusterrors.New(trusterrors.ErrCodeInvalidConfig, "snyk feed requires an API token")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if err := trusterrors.ValidateURL(endpoint); err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "token " + token}
	return &Client{
		Client:  clients.NewClient(sourceName, c, ttl, headers),
		baseURL: endpoint,
	}, nil
}

// Name returns the source identifier.
func (c *Client) Name() string { return sourceName }

// Fetch queries Snyk for the coordinate and normalizes the matching issues.
func (c *Client) Fetch(ctx context.Context, coordinate purl.Coordinate) ([]advisory.Advisory, error) {
	p := coordinate.String()

	var resp issuesResponse
	err := c.Cached(ctx, "issues:"+p, false, &resp, func() error {
		url := c.baseURL + "/v1/issues/purl/" + clients.URLEncode(p)
		return c.Get(ctx, url, &resp)
	})
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			// Snyk 404s for ecosystems it does not track.
			return nil, nil
		}
		return nil, trusterrors.Wrap(trusterrors.ErrCodeFeedUnavailable, err,
			"snyk query for %s failed", coordinate)
	}

	advisories := make([]advisory.Advisory, 0, len(resp.Issues))
	for _, i := range resp.Issues {
		advisories = append(advisories, normalize(i))
	}
	return advisories, nil
}

func normalize(i issue) advisory.Advisory {
	a := advisory.Advisory{
		ID:      i.ID,
		Summary: i.Title,
		Sources: []string{sourceName},
	}
	a.Aliases = append(a.Aliases, i.Identifiers.CVE...)
	a.Aliases = append(a.Aliases, i.Identifiers.GHSA...)

	if sev, err := advisory.ParseSeverity(i.Severity); err == nil {
		a.Severity = sev
	} else if i.CVSSScore > 0 {
		a.Severity = advisory.FromScore(i.CVSSScore)
	}

	a.AffectedRange = strings.Join(i.Semver.Vulnerable, " || ")
	if len(i.FixedIn) > 0 {
		a.FixedIn = i.FixedIn[0]
	}
	return a
}

type issuesResponse struct {
	Issues []issue `json:"issues"`
}

type issue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    string   `json:"severity"`
	CVSSScore   float64  `json:"cvssScore"`
	FixedIn     []string `json:"fixedIn"`
	Identifiers struct {
		CVE  []string `json:"CVE"`
		GHSA []string `json:"GHSA"`
	} `json:"identifiers"`
	Semver struct {
		Vulnerable []string `json:"vulnerable"`
	} `json:"semver"`
}
