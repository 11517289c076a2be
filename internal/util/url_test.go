package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseDomain(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain domain", "example.com", "example.com"},
		{"https prefix", "https://example.com", "example.com"},
		{"http prefix", "http://example.com", "example.com"},
		{"www prefix", "www.example.com", "example.com"},
		{"https and www", "https://www.example.com", "example.com"},
		{"trailing path", "https://example.com/some/path", "example.com"},
		{"subdomain kept", "news.example.com", "news.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormaliseDomain(tt.input))
		})
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"full url", "https://news.example.com/articles/1", "news.example.com"},
		{"www stripped", "https://www.example.com/", "example.com"},
		{"uppercase host", "https://EXAMPLE.com/a", "example.com"},
		{"port ignored", "https://example.com:8443/a", "example.com"},
		{"bare domain", "example.com", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DomainOf(tt.input))
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid https", "https://example.com/page", false},
		{"valid http", "http://example.com", false},
		{"valid with query", "https://example.com/search?q=bee", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"missing scheme", "example.com/page", true},
		{"ftp scheme", "ftp://example.com", true},
		{"no hostname", "https://", true},
		{"no tld", "https://example", true},
		{"localhost blocked", "http://localhost:8080/admin", true},
		{"internal blocked", "https://db.internal/secrets", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSameOrSubDomain(t *testing.T) {
	assert.True(t, SameOrSubDomain("example.com", "example.com"))
	assert.True(t, SameOrSubDomain("news.example.com", "example.com"))
	assert.False(t, SameOrSubDomain("example.com.evil.com", "example.com"))
	assert.False(t, SameOrSubDomain("other.com", "example.com"))
}
