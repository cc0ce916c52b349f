package guac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trustmesh/trustmesh/pkg/cache"
	"github.com/trustmesh/trustmesh/pkg/clients"
	trusterrors "github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// Client talks to a GUAC-style supply-chain graph API.
type Client struct {
	*clients.Client
	baseURL string
}

// NewClient creates a graph store client for the given base URL.
// Responses are cached with the given TTL; pass a NullCache to disable.
func NewClient(baseURL string, c cache.Cache, ttl time.Duration) (*Client, error) {
	if err := trusterrors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	return &Client{
		Client:  clients.NewClient("guac", c, ttl, nil),
		baseURL: baseURL,
	}, nil
}

// Lookup resolves a coordinate to matching graph nodes.
func (c *Client) Lookup(ctx context.Context, coordinate purl.Coordinate) ([]graphstore.Node, error) {
	p := coordinate.String()

	var resp lookupResponse
	err := c.Cached(ctx, "lookup:"+p, false, &resp, func() error {
		url := fmt.Sprintf("%s/query/packages?purl=%s", c.baseURL, clients.URLEncode(p))
		return c.Get(ctx, url, &resp)
	})
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return c.toNodes(resp.Packages)
}

// Expand returns the direct neighbors of the given nodes.
func (c *Client) Expand(ctx context.Context, ids []graphstore.NodeID, kinds []graphstore.EdgeKind) ([]graphstore.Node, []graphstore.Edge, error) {
	req := expandRequest{IDs: ids, Kinds: kinds}

	var resp expandResponse
	if err := c.PostJSON(ctx, c.baseURL+"/query/neighbors", req, &resp); err != nil {
		return nil, nil, err
	}

	nodes, err := c.toNodes(resp.Packages)
	if err != nil {
		return nil, nil, err
	}

	edges := make([]graphstore.Edge, 0, len(resp.Edges))
	for _, e := range resp.Edges {
		edges = append(edges, graphstore.Edge{
			From: graphstore.NodeID(e.From),
			To:   graphstore.NodeID(e.To),
			Kind: graphstore.EdgeKind(e.Kind),
		})
	}
	return nodes, edges, nil
}

func (c *Client) toNodes(pkgs []wireNode) ([]graphstore.Node, error) {
	nodes := make([]graphstore.Node, 0, len(pkgs))
	for _, p := range pkgs {
		coord, err := purl.Parse(p.Purl)
		if err != nil {
			// The store handed back a purl it could not have stored;
			// surface it rather than dropping the node silently.
			return nil, trusterrors.Wrap(trusterrors.ErrCodeInternal, err,
				"graph store returned unparsable purl %q", p.Purl)
		}
		nodes = append(nodes, graphstore.Node{
			ID:         graphstore.NodeID(p.ID),
			Coordinate: coord,
			Provenance: p.Attributes,
		})
	}
	return nodes, nil
}

// Ensure Client implements the store contract.
var _ graphstore.Store = (*Client)(nil)

type wireNode struct {
	ID         string            `json:"id"`
	Purl       string            `json:"purl"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type wireEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

type lookupResponse struct {
	Packages []wireNode `json:"packages"`
}

type expandRequest struct {
	IDs   []graphstore.NodeID   `json:"ids"`
	Kinds []graphstore.EdgeKind `json:"kinds,omitempty"`
}

type expandResponse struct {
	Packages []wireNode `json:"packages"`
	Edges    []wireEdge `json:"edges"`
}
