package mailer

import (
	"context"
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/models"
	"golang.org/x/oauth2"
)

type sentMessage struct {
	from    string
	to      []string
	message []byte
}

type fakeTransport struct {
	sent []sentMessage
	fail map[string]bool
}

func (f *fakeTransport) Send(ctx context.Context, from string, to []string, message []byte) error {
	if f.fail[to[0]] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, sentMessage{from: from, to: to, message: message})
	return nil
}

type memoryStore struct {
	records []models.Record
	saves   int
}

func (m *memoryStore) Load(ctx context.Context) ([]models.Record, error) {
	out := make([]models.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memoryStore) UpsertMerge(ctx context.Context, existing, incoming []models.Record) ([]models.Record, error) {
	return nil, errors.New("not used")
}

func (m *memoryStore) Save(ctx context.Context, records []models.Record) error {
	m.records = make([]models.Record, len(records))
	copy(m.records, records)
	m.saves++
	return nil
}

func testMailConfig() common.MailConfig {
	config := common.NewDefaultConfig().Mail
	config.Username = "sender@outlook.com"
	config.Password = "secret"
	config.Subject = "Merhaba {{.Name}}"
	config.Body = "Sayın **{{.Name}}** yöneticisi,\n\nDeneme."
	return config
}

func newTestSender(t *testing.T, config common.MailConfig, transport *fakeTransport) (*Sender, *[]time.Duration) {
	t.Helper()
	sender, err := NewSender(config, transport, arbor.NewNoOpLogger())
	require.NoError(t, err)

	var sleeps []time.Duration
	sender.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	sender.draw = func(min, max time.Duration) time.Duration { return min }
	return sender, &sleeps
}

func TestSendPending_SendsOnlyReadyRecordsAndPersists(t *testing.T) {
	store := &memoryStore{records: []models.Record{
		{Name: "A Ortaokulu", Email: "a@a.k12.tr", Contacted: models.ContactStatusNo},
		{Name: "B Ortaokulu", Email: models.EmailNotFound, Contacted: models.ContactStatusNo},
		{Name: "C Ortaokulu", Email: "c@c.k12.tr", Contacted: models.ContactStatusYes},
		{Name: "D Ortaokulu", Email: "d@d.k12.tr", Contacted: models.ContactStatusNo},
	}}
	transport := &fakeTransport{}
	sender, sleeps := newTestSender(t, testMailConfig(), transport)

	sent, err := sender.SendPending(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	require.Len(t, transport.sent, 2)
	assert.Equal(t, []string{"a@a.k12.tr"}, transport.sent[0].to)
	assert.Equal(t, []string{"d@d.k12.tr"}, transport.sent[1].to)
	assert.Equal(t, "sender@outlook.com", transport.sent[0].from)

	assert.Equal(t, 2, store.saves, "store persisted after every send")
	assert.Equal(t, models.ContactStatusYes, store.records[0].Contacted)
	assert.Equal(t, models.ContactStatusNo, store.records[1].Contacted)
	assert.Equal(t, models.ContactStatusYes, store.records[3].Contacted)

	assert.Equal(t, []time.Duration{15 * time.Second}, *sleeps, "no delay after the last email")
}

func TestSendPending_FailedSendStaysEligible(t *testing.T) {
	store := &memoryStore{records: []models.Record{
		{Name: "A Ortaokulu", Email: "a@a.k12.tr", Contacted: models.ContactStatusNo},
		{Name: "B Ortaokulu", Email: "b@b.k12.tr", Contacted: models.ContactStatusNo},
	}}
	transport := &fakeTransport{fail: map[string]bool{"a@a.k12.tr": true}}
	sender, _ := newTestSender(t, testMailConfig(), transport)

	sent, err := sender.SendPending(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	assert.Equal(t, models.ContactStatusNo, store.records[0].Contacted)
	assert.Equal(t, models.ContactStatusYes, store.records[1].Contacted)
}

func TestSendPending_DryRunDoesNotSendOrPersist(t *testing.T) {
	store := &memoryStore{records: []models.Record{
		{Name: "A Ortaokulu", Email: "a@a.k12.tr", Contacted: models.ContactStatusNo},
	}}
	config := testMailConfig()
	config.DryRun = true

	sender, err := NewSender(config, nil, arbor.NewNoOpLogger())
	require.NoError(t, err)

	sent, err := sender.SendPending(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, models.ContactStatusNo, store.records[0].Contacted)
}

func TestNewSender_RequiresTransportForLiveSend(t *testing.T) {
	_, err := NewSender(testMailConfig(), nil, arbor.NewNoOpLogger())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSelectTargets_LimitPrefersSchools(t *testing.T) {
	records := []models.Record{
		{Name: "Random Company", Email: "info@company.com", Contacted: models.ContactStatusNo},
		{Name: "Another Place", Email: "hi@place.com", Contacted: models.ContactStatusNo},
		{Name: "Deniz Koleji", Email: "info@deniz.com", Contacted: models.ContactStatusNo},
		{Name: "Some Site", Email: "x@y.k12.tr", Contacted: models.ContactStatusNo},
	}

	tests := []struct {
		name  string
		limit int
		want  []int
	}{
		{"no limit keeps store order", 0, []int{0, 1, 2, 3}},
		{"limit takes preferred first", 2, []int{2, 3}},
		{"limit fills with the rest", 3, []int{2, 3, 0}},
		{"limit above eligible", 10, []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testMailConfig()
			config.Limit = tt.limit
			sender, _ := newTestSender(t, config, &fakeTransport{})
			assert.Equal(t, tt.want, sender.selectTargets(records))
		})
	}
}

func TestCompose_MultipartAlternativeWithTemplate(t *testing.T) {
	config := testMailConfig()
	config.FromName = "Relingo"
	composer, err := NewComposer(config)
	require.NoError(t, err)

	raw, err := composer.Compose(models.Record{Name: "Fatih Ortaokulu", Email: "info@fatih.k12.tr"})
	require.NoError(t, err)

	reader, err := mail.CreateReader(strings.NewReader(string(raw)))
	require.NoError(t, err)

	subject, err := reader.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Merhaba Fatih Ortaokulu", subject)

	to, err := reader.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "info@fatih.k12.tr", to[0].Address)

	from, err := reader.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Relingo", from[0].Name)

	parts := map[string]string{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := part.Header.(*mail.InlineHeader)
		require.True(t, ok)
		contentType, _, err := h.ContentType()
		require.NoError(t, err)
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		parts[contentType] = string(body)
	}

	require.Contains(t, parts, "text/plain")
	require.Contains(t, parts, "text/html")
	assert.Contains(t, parts["text/plain"], "Sayın **Fatih Ortaokulu** yöneticisi")
	assert.Contains(t, parts["text/html"], "<strong>Fatih Ortaokulu</strong>")
}

func TestNewSMTPTransport_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *common.MailConfig)
	}{
		{"no username", func(c *common.MailConfig) { c.Username = "" }},
		{"no password", func(c *common.MailConfig) { c.Password = "" }},
		{"no host", func(c *common.MailConfig) { c.Host = "" }},
		{"oauth2 without refresh token", func(c *common.MailConfig) {
			c.Auth = AuthOAuth2
			c.OAuth.ClientID = "client"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testMailConfig()
			tt.mutate(&config)
			_, err := NewSMTPTransport(context.Background(), config, arbor.NewNoOpLogger())
			assert.ErrorIs(t, err, ErrMissingCredentials)
		})
	}
}

func TestNewSMTPTransport_OAuth2(t *testing.T) {
	config := testMailConfig()
	config.Auth = AuthOAuth2
	config.OAuth.ClientID = "client"
	config.OAuth.RefreshToken = "refresh"

	transport, err := NewSMTPTransport(context.Background(), config, arbor.NewNoOpLogger())
	require.NoError(t, err)
	_, ok := transport.auth.(*xoauth2Auth)
	assert.True(t, ok)
}

func TestXOAuth2Auth(t *testing.T) {
	auth := &xoauth2Auth{
		username: "sender@outlook.com",
		source:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc"}),
	}

	_, _, err := auth.Start(&smtp.ServerInfo{Name: "smtp.office365.com", TLS: false})
	assert.Error(t, err)

	mech, resp, err := auth.Start(&smtp.ServerInfo{Name: "smtp.office365.com", TLS: true})
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=sender@outlook.com\x01auth=Bearer abc\x01\x01", string(resp))

	next, err := auth.Next([]byte(`{"status":"401"}`), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, next)
}
