package app

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gmsas95/medremind/internal/medication"
)

type exportEntry struct {
	Name      string `yaml:"name"`
	Dosage    string `yaml:"dosage,omitempty"`
	Time      string `yaml:"time"`
	Frequency string `yaml:"frequency,omitempty"`
	Taken     bool   `yaml:"taken"`
}

type exportFile struct {
	Medications []exportEntry `yaml:"medications"`
}

// ExportMedications writes the stored medication list as YAML. It reads
// storage directly without starting the engine.
func (app *App) ExportMedications(w io.Writer) error {
	var meds []medication.Medication
	if _, err := app.Store.Get(medication.StorageKey, &meds); err != nil {
		return fmt.Errorf("failed to read medications: %w", err)
	}

	out := exportFile{Medications: make([]exportEntry, 0, len(meds))}
	for _, m := range meds {
		out.Medications = append(out.Medications, exportEntry{
			Name:      m.Name,
			Dosage:    m.Dosage,
			Time:      m.Time.String(),
			Frequency: string(m.Frequency),
			Taken:     m.Taken,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode medications: %w", err)
	}
	return enc.Close()
}
