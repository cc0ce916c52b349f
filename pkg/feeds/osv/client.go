// Package osv implements a vulnerability feed against the OSV.dev query API.
//
// One POST to /v1/query per coordinate returns every known OSV record for
// that package version. Records carry aliases (usually a CVE) and either a
// severity label in database_specific or a CVSS vector score.
package osv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	"github.com/trustmesh/trustmesh/pkg/cache"
	"github.com/trustmesh/trustmesh/pkg/clients"
	trusterrors "github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// DefaultEndpoint is the public OSV.dev API.
const DefaultEndpoint = "https://api.osv.dev"

const sourceName = "osv"

// Client queries the OSV.dev vulnerability database.
type Client struct {
	*clients.Client
	baseURL string
}

// NewClient creates an OSV feed client. An empty endpoint uses the public
// OSV.dev API. Responses are cached with the given TTL.
func NewClient(endpoint string, c cache.Cache, ttl time.Duration) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if err := trusterrors.ValidateURL(endpoint); err != nil {
		return nil, err
	}
	return &Client{
		Client:  clients.NewClient(sourceName, c, ttl, nil),
		baseURL: endpoint,
	}, nil
}

// Name returns the source identifier.
func (c *Client) Name() string { return sourceName }

// Fetch queries OSV for the coordinate and normalizes the matching records.
func (c *Client) Fetch(ctx context.Context, coordinate purl.Coordinate) ([]advisory.Advisory, error) {
	// OSV matches the purl without its version and takes the version as a
	// separate field.
	req := queryRequest{Version: coordinate.Version}
	req.Package.Purl = coordinate.WithoutVersion().String()

	var resp queryResponse
	err := c.Cached(ctx, "query:"+coordinate.String(), false, &resp, func() error {
		return c.PostJSON(ctx, c.baseURL+"/v1/query", req, &resp)
	})
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			return nil, nil
		}
		return nil, trusterrors.Wrap(trusterrors.ErrCodeFeedUnavailable, err,
			"osv query for %s failed", coordinate)
	}

	advisories := make([]advisory.Advisory, 0, len(resp.Vulns))
	for _, v := range resp.Vulns {
		advisories = append(advisories, normalize(v))
	}
	return advisories, nil
}

func normalize(v vuln) advisory.Advisory {
	a := advisory.Advisory{
		ID:       v.ID,
		Aliases:  v.Aliases,
		Summary:  v.Summary,
		Severity: severityOf(v),
		Sources:  []string{sourceName},
	}
	a.AffectedRange, a.FixedIn = rangeOf(v)
	return a
}

// severityOf picks the severity label from database_specific when present
// (GitHub-originated records carry one), otherwise falls back to the CVSS
// base score.
func severityOf(v vuln) advisory.Severity {
	if v.DatabaseSpecific.Severity != "" {
		if sev, err := advisory.ParseSeverity(v.DatabaseSpecific.Severity); err == nil {
			return sev
		}
	}
	for _, s := range v.Severity {
		if score, err := strconv.ParseFloat(s.Score, 64); err == nil {
			return advisory.FromScore(score)
		}
	}
	return advisory.SeverityUnknown
}

// rangeOf flattens OSV's affected/ranges/events structure into a single
// constraint string and the first fixed version, when the record has them.
func rangeOf(v vuln) (affected, fixedIn string) {
	for _, aff := range v.Affected {
		for _, r := range aff.Ranges {
			var introduced, fixed string
			for _, e := range r.Events {
				if e.Introduced != "" {
					introduced = e.Introduced
				}
				if e.Fixed != "" {
					fixed = e.Fixed
				}
			}
			switch {
			case introduced != "" && introduced != "0" && fixed != "":
				return fmt.Sprintf(">= %s, < %s", introduced, fixed), fixed
			case fixed != "":
				return fmt.Sprintf("< %s", fixed), fixed
			case introduced != "" && introduced != "0":
				return fmt.Sprintf(">= %s", introduced), ""
			}
		}
	}
	return "", ""
}

type queryRequest struct {
	Version string `json:"version,omitempty"`
	Package struct {
		Purl string `json:"purl"`
	} `json:"package"`
}

type queryResponse struct {
	Vulns []vuln `json:"vulns"`
}

type vuln struct {
	ID               string   `json:"id"`
	Aliases          []string `json:"aliases"`
	Summary          string   `json:"summary"`
	Severity         []score  `json:"severity"`
	Affected         []affect `json:"affected"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

type score struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type affect struct {
	Ranges []struct {
		Type   string `json:"type"`
		Events []struct {
			Introduced string `json:"introduced,omitempty"`
			Fixed      string `json:"fixed,omitempty"`
		} `json:"events"`
	} `json:"ranges"`
}
