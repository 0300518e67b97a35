package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mychart/explorer/internal/ccda"
	"github.com/mychart/explorer/internal/platform/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	s := New(conn, zerolog.Nop())
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func sampleBatch() *ccda.ParsedRecords {
	return &ccda.ParsedRecords{
		Patient: ccda.Patient{
			MRN: "MRN-1", GivenName: "Ada", FamilyName: "Lovelace",
			DOB: "19701224", Gender: "Female",
		},
		Allergies: []*ccda.Allergy{
			{Substance: "Penicillin", Reaction: "Hives", Status: "active", EffectiveDate: "20100601"},
		},
		Problems: []*ccda.Problem{
			{ProblemName: "Hypertension", Status: "Active", OnsetDate: "20150301"},
		},
		Medications: []*ccda.Medication{
			{MedicationName: "Lisinopril", Instructions: "Daily", Status: "active", StartDate: "20220110"},
		},
		Immunizations: []*ccda.Immunization{
			{VaccineName: "Influenza vaccine", DateAdministered: "20231015"},
		},
		Vitals: []*ccda.Vital{
			{VitalSign: "Heart rate", Value: "72", Unit: "/min", EffectiveDate: "20240110"},
		},
		Results: []*ccda.LabResult{
			{TestName: "Hemoglobin", Value: "13.9", Unit: "g/dL", EffectiveDate: "20240108"},
		},
		Procedures: []*ccda.Procedure{
			{ProcedureName: "Appendectomy", Date: "20050712", Provider: "G House"},
		},
		Notes: []*ccda.Note{
			{NoteType: "Progress Note", NoteDate: "20240101", NoteTitle: "Office Visit", NoteContent: "Improving."},
		},
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestInsertBatchAndReimport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.InsertBatch(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 8 {
		t.Errorf("inserted = %d, want 8", n)
	}

	// Importing the identical document again must not add a single row.
	n, err = s.InsertBatch(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if n != 0 {
		t.Errorf("reimport inserted = %d, want 0", n)
	}

	for _, table := range Tables {
		_, rows, err := s.Query(ctx, "SELECT id FROM "+table)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if len(rows) != 1 {
			t.Errorf("%s rows = %d, want 1", table, len(rows))
		}
	}
}

func TestInsertBatchSharedPatient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, sampleBatch()); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	second := &ccda.ParsedRecords{
		Patient: ccda.Patient{MRN: "MRN-1", GivenName: "Ada", FamilyName: "Lovelace", DOB: "19701224"},
		Allergies: []*ccda.Allergy{
			{Substance: "Latex", EffectiveDate: "20190101"},
		},
	}
	if _, err := s.InsertBatch(ctx, second); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	_, rows, err := s.Query(ctx, "SELECT id FROM patients")
	if err != nil {
		t.Fatalf("query patients: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("patients = %d, want 1 (same natural key)", len(rows))
	}
	_, rows, err = s.Query(ctx, "SELECT DISTINCT patient_id FROM allergies")
	if err != nil {
		t.Fatalf("query allergies: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("allergies reference %d patients, want 1", len(rows))
	}
}

func TestInsertBatchDistinctPatients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, sampleBatch()); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	other := sampleBatch()
	other.Patient.MRN = "MRN-2"
	if _, err := s.InsertBatch(ctx, other); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	_, rows, err := s.Query(ctx, "SELECT id FROM patients")
	if err != nil {
		t.Fatalf("query patients: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("patients = %d, want 2", len(rows))
	}
}

func TestInsertBatchPatientOnly(t *testing.T) {
	// A demographics-only document creates the patient row but reports zero
	// inserts: the count covers clinical records only.
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.InsertBatch(ctx, &ccda.ParsedRecords{
		Patient: ccda.Patient{MRN: "MRN-9", GivenName: "Alan", FamilyName: "Turing", DOB: "19120623"},
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}

	_, rows, err := s.Query(ctx, "SELECT id FROM patients")
	if err != nil {
		t.Fatalf("query patients: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("patients = %d, want 1", len(rows))
	}
}

func TestSolePatientID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SolePatientID(ctx); !errors.Is(err, ErrNoPatients) {
		t.Fatalf("empty store: err = %v, want ErrNoPatients", err)
	}
	if _, err := s.InsertBatch(ctx, sampleBatch()); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	id, err := s.SolePatientID(ctx)
	if err != nil {
		t.Fatalf("SolePatientID: %v", err)
	}
	if id == 0 {
		t.Error("patient id should be non-zero")
	}
}

func TestSchemaText(t *testing.T) {
	s := newTestStore(t)
	schema, err := s.SchemaText(context.Background())
	if err != nil {
		t.Fatalf("SchemaText: %v", err)
	}
	for _, table := range Tables {
		if !strings.Contains(schema, table) {
			t.Errorf("schema text missing table %s", table)
		}
	}
}

func TestQueryRendersStrings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.InsertBatch(ctx, sampleBatch()); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	cols, rows, err := s.Query(ctx, "SELECT substance, status FROM allergies WHERE patient_id = ?", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(cols) != 2 || cols[0] != "substance" {
		t.Errorf("cols = %v", cols)
	}
	if len(rows) != 1 || rows[0][0] != "Penicillin" {
		t.Errorf("rows = %v", rows)
	}
}

func TestDump(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.InsertBatch(ctx, sampleBatch()); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	dump, err := s.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(dump) != len(Tables) {
		t.Fatalf("dump tables = %d, want %d", len(dump), len(Tables))
	}
	if got := dump["medications"][0]["medication_name"]; got != "Lisinopril" {
		t.Errorf("medication_name = %q", got)
	}
}

func TestPatientContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.InsertBatch(ctx, sampleBatch()); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	pc, err := s.PatientContext(ctx)
	if err != nil {
		t.Fatalf("PatientContext: %v", err)
	}
	if pc.Gender != "Female" {
		t.Errorf("gender = %q", pc.Gender)
	}
	if pc.Age < 0 {
		t.Errorf("age = %d, want parsed from dob", pc.Age)
	}
	text := pc.Text()
	if !strings.Contains(text, "Gender: Female") || strings.Contains(text, "Lovelace") {
		t.Errorf("context text = %q, want demographics without name", text)
	}
}

func TestAgeFromDOB(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		dob  string
		want int
	}{
		{"19701224", 55},
		{"19701224083045-0500", 55},
		{"19701224083045", 55},
		{"1970-12-24", 55},
		{"197012", 55},
		{"1970", 56},
		{"20260829", 0},
		{"not-a-date", -1},
		{"", -1},
	}
	for _, c := range cases {
		if got := ageFromDOB(c.dob, now); got != c.want {
			t.Errorf("ageFromDOB(%q) = %d, want %d", c.dob, got, c.want)
		}
	}
}
