package csvstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/models"
)

// utf8BOM keeps the file readable by spreadsheet tools that sniff the encoding
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Columns is the on-disk header order
var Columns = []string{"name", "website", "email", "contacted"}

// NameValidator decides whether a stored name is still a real school name
type NameValidator interface {
	IsValid(name string) bool
}

// Store implements interfaces.RecordStore over a single CSV file
type Store struct {
	path   string
	logger arbor.ILogger
	mu     sync.Mutex
}

var _ interfaces.RecordStore = (*Store)(nil)

// NewStore creates a CSV-backed record store
func NewStore(config common.StoreConfig, logger arbor.ILogger) (*Store, error) {
	path := strings.TrimSpace(config.Path)
	if path == "" {
		return nil, errors.New("store path is required")
	}
	return &Store{
		path:   path,
		logger: logger,
	}, nil
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads every record in file order. A missing file is an empty store.
func (s *Store) Load(ctx context.Context) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug().Str("path", s.path).Msg("Record store does not exist yet, starting empty")
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record store: %w", err)
	}

	records, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse record store %s: %w", s.path, err)
	}

	s.logger.Debug().Str("path", s.path).Int("records", len(records)).Msg("Loaded record store")
	return records, nil
}

// Save writes the records as-is through a temp file and rename
func (s *Store) Save(ctx context.Context, records []models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(records)
}

// UpsertMerge appends incoming records whose name is not stored yet, organizes
// the result and persists it. Existing records are never modified.
func (s *Store) UpsertMerge(ctx context.Context, existing []models.Record, incoming []models.Record) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged, added := Merge(existing, incoming)
	Organize(merged)

	if err := s.Save(ctx, merged); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("path", s.path).
		Int("existing", len(existing)).
		Int("added", added).
		Int("total", len(merged)).
		Msg("Merged records into store")

	return merged, nil
}

// Reorganize drops records with invalid names, sorts the rest and saves them.
// It returns the statistics of the saved file and the number of removed records.
func (s *Store) Reorganize(ctx context.Context, validator NameValidator) (models.RecordStats, int, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return models.RecordStats{}, 0, err
	}

	kept := records[:0]
	removed := 0
	for _, r := range records {
		if validator != nil && !validator.IsValid(r.Name) {
			s.logger.Debug().Str("name", r.Name).Msg("Dropping invalid name")
			removed++
			continue
		}
		kept = append(kept, r)
	}

	Organize(kept)
	if err := s.Save(ctx, kept); err != nil {
		return models.RecordStats{}, removed, err
	}

	stats := models.ComputeRecordStats(kept)
	s.logger.Info().
		Str("path", s.path).
		Int("removed", removed).
		Int("total", stats.Total).
		Int("with_email", stats.WithEmail).
		Int("with_website", stats.WithWebsite).
		Int("contacted", stats.Contacted).
		Int("ready_to_contact", stats.ReadyToContact).
		Msg("Record store reorganized")

	return stats, removed, nil
}

// Merge returns existing followed by every incoming record with an unseen name.
// Duplicates inside incoming keep the first occurrence.
func Merge(existing []models.Record, incoming []models.Record) ([]models.Record, int) {
	merged := make([]models.Record, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	for _, r := range existing {
		merged = append(merged, r)
		seen[r.Name] = struct{}{}
	}

	added := 0
	for _, r := range incoming {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		if r.Contacted == "" {
			r.Contacted = models.ContactStatusNo
		}
		merged = append(merged, r)
		added++
	}
	return merged, added
}

// Organize sorts records in place: with email first, then with website, then by name
func Organize(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.HasEmail() != b.HasEmail() {
			return a.HasEmail()
		}
		if a.HasWebsite() != b.HasWebsite() {
			return a.HasWebsite()
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func (s *Store) write(records []models.Record) error {
	data, err := encode(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace record store: %w", err)
	}

	s.logger.Debug().Str("path", s.path).Int("records", len(records)).Msg("Saved record store")
	return nil
}

func encode(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		contacted := r.Contacted
		if contacted == "" {
			contacted = models.ContactStatusNo
		}
		row := []string{r.Name, r.Website, r.Email, string(contacted)}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write record %q: %w", r.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush records: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) ([]models.Record, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Record{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := index["name"]; !ok {
		return nil, errors.New("missing name column")
	}

	field := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := []models.Record{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		name := field(row, "name")
		if name == "" {
			continue
		}
		records = append(records, models.Record{
			Name:      name,
			Website:   field(row, "website"),
			Email:     field(row, "email"),
			Contacted: models.ParseContactStatus(field(row, "contacted")),
		})
	}
	return records, nil
}
