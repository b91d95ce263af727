package models

import "strings"

// EmailNotFound marks a record whose website was searched without finding an address.
// It distinguishes "searched but absent" from an empty, not-yet-searched field.
const EmailNotFound = "NOT FOUND"

// ContactStatus is the downstream outreach flag stored in the "contacted" column.
type ContactStatus string

const (
	ContactStatusNo  ContactStatus = "no"
	ContactStatusYes ContactStatus = "yes"
)

// ParseContactStatus normalises a stored value. Anything other than "yes" is treated as "no".
func ParseContactStatus(value string) ContactStatus {
	if strings.EqualFold(strings.TrimSpace(value), string(ContactStatusYes)) {
		return ContactStatusYes
	}
	return ContactStatusNo
}

// Record is the durable unit persisted by the record store
type Record struct {
	Name      string        `json:"name"`
	Website   string        `json:"website"`
	Email     string        `json:"email"`
	Contacted ContactStatus `json:"contacted"`
}

// NewRecord creates a record for a freshly discovered school
func NewRecord(name, website, email string) Record {
	if strings.TrimSpace(email) == "" {
		email = EmailNotFound
	}
	return Record{
		Name:      name,
		Website:   website,
		Email:     email,
		Contacted: ContactStatusNo,
	}
}

// HasEmail reports whether the record carries a real address
func (r Record) HasEmail() bool {
	email := strings.TrimSpace(r.Email)
	return email != "" && email != EmailNotFound
}

// HasWebsite reports whether a website was found for the record
func (r Record) HasWebsite() bool {
	return strings.TrimSpace(r.Website) != ""
}

// IsContacted reports whether outreach was already sent
func (r Record) IsContacted() bool {
	return r.Contacted == ContactStatusYes
}

// ReadyToContact reports whether the mail sender should pick this record up
func (r Record) ReadyToContact() bool {
	return r.HasEmail() && !r.IsContacted()
}

// RecordStats summarises a record collection for logging and reports
type RecordStats struct {
	Total          int `json:"total"`
	WithEmail      int `json:"with_email"`
	WithWebsite    int `json:"with_website"`
	Contacted      int `json:"contacted"`
	ReadyToContact int `json:"ready_to_contact"`
}

// ComputeRecordStats counts the interesting subsets of records
func ComputeRecordStats(records []Record) RecordStats {
	stats := RecordStats{Total: len(records)}
	for _, r := range records {
		if r.HasEmail() {
			stats.WithEmail++
		}
		if r.HasWebsite() {
			stats.WithWebsite++
		}
		if r.IsContacted() {
			stats.Contacted++
		}
		if r.ReadyToContact() {
			stats.ReadyToContact++
		}
	}
	return stats
}
