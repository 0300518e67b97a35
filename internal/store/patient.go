package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PatientContext is the demographics summary handed to the synthesis prompt.
// It deliberately carries no name.
type PatientContext struct {
	DOB           string
	Age           int // -1 when the birth date cannot be parsed
	Gender        string
	MaritalStatus string
	Race          string
	Ethnicity     string
	Deceased      bool
	DeceasedDate  string
}

// PatientContext loads the demographics of the store's sole patient.
func (s *Store) PatientContext(ctx context.Context) (PatientContext, error) {
	var (
		pc       PatientContext
		deceased int
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT dob, gender, marital_status, race, ethnicity, deceased, deceased_date
		FROM patients ORDER BY id LIMIT 1`).Scan(
		&pc.DOB, &pc.Gender, &pc.MaritalStatus, &pc.Race, &pc.Ethnicity, &deceased, &pc.DeceasedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return PatientContext{}, ErrNoPatients
	}
	if err != nil {
		return PatientContext{}, fmt.Errorf("load patient context: %w", err)
	}
	pc.Deceased = deceased != 0
	pc.Age = ageFromDOB(pc.DOB, time.Now())
	return pc, nil
}

// Text renders the demographics as a single prompt-ready line.
func (pc PatientContext) Text() string {
	var parts []string
	if pc.Age >= 0 {
		parts = append(parts, fmt.Sprintf("Age: %d", pc.Age))
	}
	if pc.Gender != "" {
		parts = append(parts, "Gender: "+pc.Gender)
	}
	if pc.MaritalStatus != "" {
		parts = append(parts, "Marital status: "+pc.MaritalStatus)
	}
	if pc.Race != "" {
		parts = append(parts, "Race: "+pc.Race)
	}
	if pc.Ethnicity != "" {
		parts = append(parts, "Ethnicity: "+pc.Ethnicity)
	}
	if pc.Deceased {
		d := "Deceased"
		if pc.DeceasedDate != "" {
			d += " " + pc.DeceasedDate
		}
		parts = append(parts, d)
	}
	if len(parts) == 0 {
		return "No patient demographics available."
	}
	return "Patient: " + strings.Join(parts, ", ")
}

// ageFromDOB parses the HL7 and ISO date shapes seen in exports and returns
// whole years, or -1 when unparseable. HL7 birthTime values often carry a
// full timestamp (19701224083045-0500); only the leading date digits count.
func ageFromDOB(dob string, now time.Time) int {
	dob = strings.TrimSpace(dob)

	var born time.Time
	if t, err := time.Parse("2006-01-02", dob); err == nil {
		born = t
	} else {
		digits := leadingDigits(dob)
		parsed := false
		for _, layout := range []string{"20060102", "200601", "2006"} {
			if len(digits) < len(layout) {
				continue
			}
			if t, err := time.Parse(layout, digits[:len(layout)]); err == nil {
				born = t
				parsed = true
				break
			}
		}
		if !parsed {
			return -1
		}
	}

	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return -1
	}
	return years
}

func leadingDigits(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s[:i]
		}
	}
	return s
}
