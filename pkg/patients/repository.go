package patients

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Repository supplies the ordered, read-only patient list for a viewing
// session. Both the cohort engine and the prediction controller read from it.
type Repository interface {
	List() []models.PatientRecord
}

// Find looks a patient up by id.
func Find(repo Repository, id string) (models.PatientRecord, bool) {
	for _, record := range repo.List() {
		if record.ID == id {
			return record, true
		}
	}
	return models.PatientRecord{}, false
}

type document struct {
	Patients []models.PatientRecord `json:"patients"`
}

type StaticRepository struct {
	records []models.PatientRecord
}

func NewStaticRepository(records []models.PatientRecord) (*StaticRepository, error) {
	seen := make(map[string]struct{}, len(records))
	for i, record := range records {
		if strings.TrimSpace(record.ID) == "" {
			return nil, fmt.Errorf("patient at index %d has no id", i)
		}
		if _, dup := seen[record.ID]; dup {
			return nil, fmt.Errorf("duplicate patient id %s", record.ID)
		}
		seen[record.ID] = struct{}{}
	}
	return &StaticRepository{records: clone(records)}, nil
}

// List returns a deep copy in load order; callers may mutate it freely.
func (r *StaticRepository) List() []models.PatientRecord {
	return clone(r.records)
}

func clone(records []models.PatientRecord) []models.PatientRecord {
	out := make([]models.PatientRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].Conditions != nil {
			out[i].Conditions = append([]string(nil), out[i].Conditions...)
		}
	}
	return out
}

// Load reads a `{ "patients": [...] }` document. YAML documents are accepted
// for .yaml and .yml files.
func Load(path string) (*StaticRepository, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read patient store: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		content, err = yamlToJSON(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse patient store: %w", err)
		}
	}

	var doc document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse patient store: %w", err)
	}
	return NewStaticRepository(doc.Patients)
}

// yamlToJSON funnels YAML through the JSON decoders so both formats share the
// same field names and date handling.
func yamlToJSON(content []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}
