package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrCodeEU/faceauth/pkg/config"
)

func TestPrintConfig(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		want    string
		wantErr bool
	}{
		{name: "yaml", format: "yaml", want: "redis:"},
		{name: "default format", format: "", want: "redis:"},
		{name: "toml", format: "toml", want: "[session.redis]"},
		{name: "unknown", format: "json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultConfig()
			c.Session.Redis.Password = "hunter2"
			c.Dev.JWTSecret = "jwt-secret"

			var buf bytes.Buffer
			err := printConfig(&buf, c, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("printConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
			for _, secret := range []string{"hunter2", "jwt-secret"} {
				if strings.Contains(out, secret) {
					t.Errorf("output leaks %q", secret)
				}
			}
			if !strings.Contains(out, redacted) {
				t.Errorf("output should contain the redaction marker")
			}

			if c.Session.Redis.Password != "hunter2" {
				t.Error("printConfig() modified the caller's config")
			}
		})
	}
}

func TestPrintConfig_EmptySecretsStayEmpty(t *testing.T) {
	c := config.DefaultConfig()
	c.Session.Redis.Password = ""
	c.Dev.JWTSecret = ""

	var buf bytes.Buffer
	if err := printConfig(&buf, c, "yaml"); err != nil {
		t.Fatalf("printConfig() error = %v", err)
	}
	if strings.Contains(buf.String(), redacted) {
		t.Error("empty secrets should not be masked")
	}
}
