package emails

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/schoolreach/internal/common"
)

func defaultMatcher() *Matcher {
	return NewMatcher(common.NewDefaultConfig().Emails.PlaceholderDomains)
}

func TestMatcher_FindAll(t *testing.T) {
	m := defaultMatcher()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"placeholder dropped", "admin@example.com real@xyzschool.k12.tr", []string{"real@xyzschool.k12.tr"}},
		{"first seen order and case-insensitive dedup", "b@okul.k12.tr a@okul.k12.tr B@OKUL.K12.TR", []string{"b@okul.k12.tr", "a@okul.k12.tr"}},
		{"asset names dropped", "logo@2x.png bilgi@okul.k12.tr", []string{"bilgi@okul.k12.tr"}},
		{"none", "Telefon: 0212 000 00 00", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.FindAll(tt.text))
		})
	}
}

func TestMatcher_Valid(t *testing.T) {
	m := defaultMatcher()

	assert.True(t, m.Valid("info@okul.k12.tr"))
	assert.False(t, m.Valid("info@okul.k12.tr extra"))
	assert.False(t, m.Valid("test@test.com"))
	assert.False(t, m.Valid("not-an-address"))
}
