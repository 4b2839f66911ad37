package cmd

import "testing"

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"port only", ":8080", false},
		{"localhost", "localhost:3400", false},
		{"ip and port", "127.0.0.1:3400", false},
		{"hostname", "api.internal:443", false},
		{"auto-assign port", ":0", false},
		{"missing port", "localhost", true},
		{"empty port", "localhost:", true},
		{"non-numeric port", "localhost:http", true},
		{"port out of range", "localhost:70000", true},
		{"whitespace host", "bad host:8080", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if tt.wantErr && err == nil {
				t.Errorf("validateAddr(%q) = nil, want error", tt.addr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateAddr(%q) = %v, want nil", tt.addr, err)
			}
		})
	}
}
