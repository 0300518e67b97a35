// Package store owns the relational schema and all persistence for imported
// clinical records. It is the only package that writes to the database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mychart/explorer/internal/ccda"
)

// ErrPatientUnresolved is returned when the patient row cannot be found nor
// created; the enclosing transaction is rolled back and nothing is persisted.
var ErrPatientUnresolved = errors.New("patient id unresolved after insert")

const schemaDDL = `
CREATE TABLE IF NOT EXISTS patients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mrn TEXT,
	given_name TEXT,
	family_name TEXT,
	dob TEXT,
	gender TEXT,
	marital_status TEXT,
	race TEXT,
	ethnicity TEXT,
	deceased INTEGER NOT NULL DEFAULT 0,
	deceased_date TEXT,
	UNIQUE(mrn, given_name, family_name, dob)
);
CREATE TABLE IF NOT EXISTS allergies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	substance TEXT,
	reaction TEXT,
	status TEXT,
	effective_date TEXT,
	UNIQUE(patient_id, substance, effective_date)
);
CREATE TABLE IF NOT EXISTS problems (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	problem_name TEXT,
	status TEXT,
	onset_date TEXT,
	resolved_date TEXT,
	UNIQUE(patient_id, problem_name, onset_date)
);
CREATE TABLE IF NOT EXISTS medications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	medication_name TEXT,
	instructions TEXT,
	status TEXT,
	start_date TEXT,
	end_date TEXT,
	UNIQUE(patient_id, medication_name, start_date)
);
CREATE TABLE IF NOT EXISTS immunizations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	vaccine_name TEXT,
	date_administered TEXT,
	UNIQUE(patient_id, vaccine_name, date_administered)
);
CREATE TABLE IF NOT EXISTS vitals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	vital_sign TEXT,
	value TEXT,
	unit TEXT,
	effective_date TEXT,
	UNIQUE(patient_id, vital_sign, effective_date)
);
CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	test_name TEXT,
	value TEXT,
	unit TEXT,
	reference_range TEXT,
	interpretation TEXT,
	effective_date TEXT,
	UNIQUE(patient_id, test_name, effective_date)
);
CREATE TABLE IF NOT EXISTS procedures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	procedure_name TEXT,
	date TEXT,
	provider TEXT,
	UNIQUE(patient_id, procedure_name, date)
);
CREATE TABLE IF NOT EXISTS notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
	note_type TEXT,
	note_date TEXT,
	note_title TEXT,
	note_content TEXT,
	provider TEXT,
	UNIQUE(patient_id, note_date, note_title)
);`

// Tables lists every table the store manages, in schema order.
var Tables = []string{
	"patients", "allergies", "problems", "medications",
	"immunizations", "vitals", "results", "procedures", "notes",
}

type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

func New(conn *sql.DB, logger zerolog.Logger) *Store {
	return &Store{conn: conn, logger: logger}
}

// EnsureSchema creates every table if it does not already exist. Safe to call
// on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertBatch persists one document's records in a single transaction. The
// patient row is found or created by its natural key; every clinical record
// is stamped with the resolved patient id and inserted with duplicate rows
// silently ignored. The returned count covers clinical records only; the
// patient row is a resolution step, not part of it, so a demographics-only
// document reports zero inserts.
func (s *Store) InsertBatch(ctx context.Context, recs *ccda.ParsedRecords) (int, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	pid, err := s.resolvePatient(ctx, tx, recs.Patient)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, rec := range recs.Records() {
		rec.SetPatient(pid)
		res, err := insertRecord(ctx, tx, rec)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", rec.Table(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	s.logger.Debug().Int64("patient_id", pid).Int("inserted", inserted).Msg("batch persisted")
	return inserted, nil
}

// resolvePatient finds the patient row matching the demographics' natural key
// or creates it, then re-reads the id. Records are never attached to a
// guessed id.
func (s *Store) resolvePatient(ctx context.Context, tx *sql.Tx, p ccda.Patient) (int64, error) {
	const find = `SELECT id FROM patients WHERE mrn = ? AND given_name = ? AND family_name = ? AND dob = ?`

	var id int64
	err := tx.QueryRowContext(ctx, find, p.MRN, p.GivenName, p.FamilyName, p.DOB).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find patient: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO patients
		(mrn, given_name, family_name, dob, gender, marital_status, race, ethnicity, deceased, deceased_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MRN, p.GivenName, p.FamilyName, p.DOB, p.Gender, p.MaritalStatus,
		p.Race, p.Ethnicity, boolInt(p.Deceased), p.DeceasedDate)
	if err != nil {
		return 0, fmt.Errorf("insert patient: %w", err)
	}

	err = tx.QueryRowContext(ctx, find, p.MRN, p.GivenName, p.FamilyName, p.DOB).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPatientUnresolved
	}
	if err != nil {
		return 0, fmt.Errorf("reread patient: %w", err)
	}
	return id, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec ccda.Record) (sql.Result, error) {
	switch r := rec.(type) {
	case *ccda.Allergy:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO allergies
			(patient_id, substance, reaction, status, effective_date)
			VALUES (?, ?, ?, ?, ?)`,
			r.PatientID, r.Substance, r.Reaction, r.Status, r.EffectiveDate)
	case *ccda.Problem:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO problems
			(patient_id, problem_name, status, onset_date, resolved_date)
			VALUES (?, ?, ?, ?, ?)`,
			r.PatientID, r.ProblemName, r.Status, r.OnsetDate, r.ResolvedDate)
	case *ccda.Medication:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO medications
			(patient_id, medication_name, instructions, status, start_date, end_date)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.PatientID, r.MedicationName, r.Instructions, r.Status, r.StartDate, r.EndDate)
	case *ccda.Immunization:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO immunizations
			(patient_id, vaccine_name, date_administered)
			VALUES (?, ?, ?)`,
			r.PatientID, r.VaccineName, r.DateAdministered)
	case *ccda.Vital:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO vitals
			(patient_id, vital_sign, value, unit, effective_date)
			VALUES (?, ?, ?, ?, ?)`,
			r.PatientID, r.VitalSign, r.Value, r.Unit, r.EffectiveDate)
	case *ccda.LabResult:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO results
			(patient_id, test_name, value, unit, reference_range, interpretation, effective_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.PatientID, r.TestName, r.Value, r.Unit, r.ReferenceRange, r.Interpretation, r.EffectiveDate)
	case *ccda.Procedure:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO procedures
			(patient_id, procedure_name, date, provider)
			VALUES (?, ?, ?, ?)`,
			r.PatientID, r.ProcedureName, r.Date, r.Provider)
	case *ccda.Note:
		return tx.ExecContext(ctx, `INSERT OR IGNORE INTO notes
			(patient_id, note_type, note_date, note_title, note_content, provider)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.PatientID, r.NoteType, r.NoteDate, r.NoteTitle, r.NoteContent, r.Provider)
	default:
		return nil, fmt.Errorf("unknown record type %T", rec)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
