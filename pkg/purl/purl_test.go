package purl

import (
	"testing"

	"github.com/trustmesh/trustmesh/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Coordinate
	}{
		{
			name: "simple npm package",
			raw:  "pkg:npm/left-pad@1.3.0",
			want: Coordinate{Type: "npm", Name: "left-pad", Version: "1.3.0"},
		},
		{
			name: "scoped npm package",
			raw:  "pkg:npm/%40babel/core@7.20.0",
			want: Coordinate{Type: "npm", Namespace: "@babel", Name: "core", Version: "7.20.0"},
		},
		{
			name: "maven with namespace",
			raw:  "pkg:maven/io.vertx/vertx-web@4.3.4.redhat-00007",
			want: Coordinate{Type: "maven", Namespace: "io.vertx", Name: "vertx-web", Version: "4.3.4.redhat-00007"},
		},
		{
			name: "uppercase type is lowered",
			raw:  "pkg:NPM/left-pad@1.3.0",
			want: Coordinate{Type: "npm", Name: "left-pad", Version: "1.3.0"},
		},
		{
			name: "no version",
			raw:  "pkg:pypi/requests",
			want: Coordinate{Type: "pypi", Name: "requests"},
		},
		{
			name: "qualifiers",
			raw:  "pkg:rpm/redhat/openssl@1.1.1k-7.el8?arch=x86_64&distro=rhel-8",
			want: Coordinate{
				Type: "rpm", Namespace: "redhat", Name: "openssl", Version: "1.1.1k-7.el8",
				Qualifiers: map[string]string{"arch": "x86_64", "distro": "rhel-8"},
			},
		},
		{
			name: "subpath",
			raw:  "pkg:golang/github.com/hashicorp/go-version@v1.7.0#internal",
			want: Coordinate{
				Type: "golang", Namespace: "github.com/hashicorp", Name: "go-version",
				Version: "v1.7.0", Subpath: "internal",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "no scheme", raw: "npm/left-pad@1.3.0"},
		{name: "type only", raw: "pkg:npm"},
		{name: "empty name", raw: "pkg:npm/"},
		{name: "bad escape", raw: "pkg:npm/left%zzpad@1.0.0"},
		{name: "qualifier without key", raw: "pkg:npm/a@1.0.0?=x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got nil", tt.raw)
			}
			if !errors.Is(err, errors.ErrCodeMalformedCoordinate) {
				t.Errorf("error code = %q, want MALFORMED_COORDINATE", errors.GetCode(err))
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	raws := []string{
		"pkg:npm/left-pad@1.3.0",
		"pkg:npm/%40babel/core@7.20.0",
		"pkg:rpm/redhat/openssl@1.1.1k-7.el8?arch=x86_64",
	}

	for _, raw := range raws {
		c, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		again, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(String()) failed for %q: %v", c.String(), err)
		}
		if !c.Equal(again) {
			t.Errorf("round trip changed coordinate: %q -> %q", raw, again.String())
		}
	}
}

func TestEqualIgnoresQualifierOrder(t *testing.T) {
	a := MustParse("pkg:rpm/redhat/openssl@1.1.1?arch=x86_64&distro=rhel-8")
	b := MustParse("pkg:rpm/redhat/openssl@1.1.1?distro=rhel-8&arch=x86_64")
	if !a.Equal(b) {
		t.Error("coordinates differing only in qualifier order should be equal")
	}
}

func TestWithoutVersion(t *testing.T) {
	c := MustParse("pkg:npm/left-pad@1.3.0")
	stripped := c.WithoutVersion()
	if stripped.Version != "" {
		t.Errorf("WithoutVersion() kept version %q", stripped.Version)
	}
	if c.Version != "1.3.0" {
		t.Error("WithoutVersion() mutated the receiver")
	}
}
