package websites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/schoolreach/internal/common"
)

func TestSelectBest(t *testing.T) {
	official := common.NewDefaultConfig().Search.OfficialDomains

	tests := []struct {
		name string
		urls []string
		want string
	}{
		{"official outranks first", []string{"https://randomsite.com/x", "https://xyzschool.k12.tr"}, "https://xyzschool.k12.tr"},
		{"first official wins", []string{"https://a.meb.gov.tr/okul", "https://b.k12.tr"}, "https://a.meb.gov.tr/okul"},
		{"falls back to first", []string{"https://okulrehberi.com/a", "https://other.com"}, "https://okulrehberi.com/a"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectBest(tt.urls, official))
		})
	}
}

func TestIsOfficial(t *testing.T) {
	official := common.NewDefaultConfig().Search.OfficialDomains

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.xyzschool.k12.tr/iletisim", true},
		{"https://ibb.bel.tr", true},
		{"https://isbel.tr", false},
		{"https://okul.edu.tr.example.com", false},
		{"https://randomsite.com/?ref=x.k12.tr", false},
		{"not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOfficial(tt.url, official))
		})
	}
}
