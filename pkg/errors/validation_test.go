package errors

import "testing"

func TestValidateCoordinateString(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid purl", raw: "pkg:npm/left-pad@1.3.0", wantErr: false},
		{name: "valid with namespace", raw: "pkg:maven/io.vertx/vertx-web@4.3.4", wantErr: false},
		{name: "empty", raw: "", wantErr: true},
		{name: "missing scheme", raw: "npm/left-pad@1.3.0", wantErr: true},
		{name: "embedded whitespace", raw: "pkg:npm/left pad@1.3.0", wantErr: true},
		{name: "control character", raw: "pkg:npm/left-pad\x00@1.3.0", wantErr: true},
		{name: "too long", raw: "pkg:npm/" + string(make([]byte, 2048)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinateString(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCoordinateString(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeMalformedCoordinate) {
				t.Errorf("error code = %q, want MALFORMED_COORDINATE", GetCode(err))
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https", url: "https://api.osv.dev", wantErr: false},
		{name: "http", url: "http://localhost:8912", wantErr: false},
		{name: "empty", url: "", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
