// Package ccda extracts clinical records from parsed CDA document trees.
// Sections are recognized by their HL7 template identifiers and converted
// into the flat record types the store persists.
package ccda

// Patient holds the demographics read from the document's recordTarget.
// Fields that the document does not carry stay empty.
type Patient struct {
	ID            int64
	MRN           string
	GivenName     string
	FamilyName    string
	DOB           string
	Gender        string
	MaritalStatus string
	Race          string
	Ethnicity     string
	Deceased      bool
	DeceasedDate  string
}

// Record is the shape shared by every clinical record except the patient.
// Table names the destination table; SetPatient stamps the owning patient
// once the store has resolved its row id.
type Record interface {
	Table() string
	SetPatient(id int64)
}

type Allergy struct {
	ID            int64
	PatientID     int64
	Substance     string
	Reaction      string
	Status        string
	EffectiveDate string
}

type Problem struct {
	ID           int64
	PatientID    int64
	ProblemName  string
	Status       string
	OnsetDate    string
	ResolvedDate string
}

type Medication struct {
	ID             int64
	PatientID      int64
	MedicationName string
	Instructions   string
	Status         string
	StartDate      string
	EndDate        string
}

type Immunization struct {
	ID               int64
	PatientID        int64
	VaccineName      string
	DateAdministered string
}

type Vital struct {
	ID            int64
	PatientID     int64
	VitalSign     string
	Value         string
	Unit          string
	EffectiveDate string
}

type LabResult struct {
	ID             int64
	PatientID      int64
	TestName       string
	Value          string
	Unit           string
	ReferenceRange string
	Interpretation string
	EffectiveDate  string
}

type Procedure struct {
	ID            int64
	PatientID     int64
	ProcedureName string
	Date          string
	Provider      string
}

type Note struct {
	ID          int64
	PatientID   int64
	NoteType    string
	NoteDate    string
	NoteTitle   string
	NoteContent string
	Provider    string
}

func (a *Allergy) Table() string      { return "allergies" }
func (p *Problem) Table() string      { return "problems" }
func (m *Medication) Table() string   { return "medications" }
func (i *Immunization) Table() string { return "immunizations" }
func (v *Vital) Table() string        { return "vitals" }
func (r *LabResult) Table() string    { return "results" }
func (p *Procedure) Table() string    { return "procedures" }
func (n *Note) Table() string         { return "notes" }

func (a *Allergy) SetPatient(id int64)      { a.PatientID = id }
func (p *Problem) SetPatient(id int64)      { p.PatientID = id }
func (m *Medication) SetPatient(id int64)   { m.PatientID = id }
func (i *Immunization) SetPatient(id int64) { i.PatientID = id }
func (v *Vital) SetPatient(id int64)        { v.PatientID = id }
func (r *LabResult) SetPatient(id int64)    { r.PatientID = id }
func (p *Procedure) SetPatient(id int64)    { p.PatientID = id }
func (n *Note) SetPatient(id int64)         { n.PatientID = id }

// ParsedRecords is the outcome of ingesting one document: the patient plus
// every clinical record found in recognized sections.
type ParsedRecords struct {
	Patient       Patient
	Allergies     []*Allergy
	Problems      []*Problem
	Medications   []*Medication
	Immunizations []*Immunization
	Vitals        []*Vital
	Results       []*LabResult
	Procedures    []*Procedure
	Notes         []*Note
}

// Records flattens every clinical record into one slice in table order.
func (p *ParsedRecords) Records() []Record {
	out := make([]Record, 0,
		len(p.Allergies)+len(p.Problems)+len(p.Medications)+len(p.Immunizations)+
			len(p.Vitals)+len(p.Results)+len(p.Procedures)+len(p.Notes))
	for _, r := range p.Allergies {
		out = append(out, r)
	}
	for _, r := range p.Problems {
		out = append(out, r)
	}
	for _, r := range p.Medications {
		out = append(out, r)
	}
	for _, r := range p.Immunizations {
		out = append(out, r)
	}
	for _, r := range p.Vitals {
		out = append(out, r)
	}
	for _, r := range p.Results {
		out = append(out, r)
	}
	for _, r := range p.Procedures {
		out = append(out, r)
	}
	for _, r := range p.Notes {
		out = append(out, r)
	}
	return out
}
