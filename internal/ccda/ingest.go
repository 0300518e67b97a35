package ccda

import (
	"errors"
	"strings"

	"github.com/mychart/explorer/internal/platform/xmltree"
)

// ErrPatientDataMissing is returned when a document carries no recognizable
// patientRole element.
var ErrPatientDataMissing = errors.New("patient data missing from document")

// Template identifiers of the coded sections the ingestors understand.
const (
	OIDAllergies     = "2.16.840.1.113883.10.20.22.2.6.1"
	OIDProblems      = "2.16.840.1.113883.10.20.22.2.5.1"
	OIDMedications   = "2.16.840.1.113883.10.20.22.2.1.1"
	OIDImmunizations = "2.16.840.1.113883.10.20.22.2.2.1"
	OIDVitals        = "2.16.840.1.113883.10.20.22.2.4.1"
	OIDResults       = "2.16.840.1.113883.10.20.22.2.3.1"
	OIDProcedures    = "2.16.840.1.113883.10.20.22.2.7.1"
	OIDNotes         = "1.3.6.1.4.1.19376.1.5.3.1.3.4"
)

type sectionFunc func(in *ingest, section *xmltree.Node)

var sectionIngestors = map[string]sectionFunc{
	OIDAllergies:     (*ingest).allergies,
	OIDProblems:      (*ingest).problems,
	OIDMedications:   (*ingest).medications,
	OIDImmunizations: (*ingest).immunizations,
	OIDVitals:        (*ingest).vitals,
	OIDResults:       (*ingest).results,
	OIDProcedures:    (*ingest).procedures,
	OIDNotes:         (*ingest).notes,
}

type ingest struct {
	root *xmltree.Node
	out  *ParsedRecords
}

// ParseDocument walks a parsed document tree and returns every clinical
// record found in the sections it recognizes. Sections with unknown template
// identifiers are skipped; a section carrying several known template ids
// feeds every matching ingestor.
func ParseDocument(root *xmltree.Node) (*ParsedRecords, error) {
	in := &ingest{root: root, out: &ParsedRecords{}}

	patient, err := in.patient()
	if err != nil {
		return nil, err
	}
	in.out.Patient = patient

	for _, section := range xmltree.FindAll(root, ".//cda:section") {
		seen := make(map[string]bool)
		for _, tpl := range xmltree.FindAll(section, ".//cda:templateId") {
			oid := tpl.Attr("root")
			if seen[oid] {
				continue
			}
			seen[oid] = true
			if fn, ok := sectionIngestors[oid]; ok {
				fn(in, section)
			}
		}
	}
	return in.out, nil
}

// ---- Helpers ----

func attrOf(n *xmltree.Node, path, attr string) string {
	if el := xmltree.FindFirst(n, path); el != nil {
		return el.Attr(attr)
	}
	return ""
}

func textOf(n *xmltree.Node, path string) string {
	if el := xmltree.FindFirst(n, path); el != nil {
		return strings.TrimSpace(el.Text)
	}
	return ""
}

// nameOf resolves a human-readable name from the code element at codePath,
// trying in order: the displayName attribute, the trimmed text of an
// originalText child, an originalText reference ("#id") resolved against the
// whole document, and finally the code element's own text.
func (in *ingest) nameOf(el *xmltree.Node, codePath string) string {
	code := xmltree.FindFirst(el, codePath)
	if code == nil {
		return ""
	}
	if name := code.Attr("displayName"); name != "" {
		return name
	}
	if orig := xmltree.FindFirst(code, "cda:originalText"); orig != nil {
		if txt := strings.TrimSpace(orig.Text); txt != "" {
			return txt
		}
		if ref := xmltree.FindFirst(orig, "cda:reference"); ref != nil {
			if val := ref.Attr("value"); strings.HasPrefix(val, "#") {
				if target := xmltree.FindByID(in.root, val[1:]); target != nil {
					return target.DeepText()
				}
			}
		}
	}
	return strings.TrimSpace(code.Text)
}

// ---- Patient ----

func (in *ingest) patient() (Patient, error) {
	role := xmltree.FindFirst(in.root, ".//cda:recordTarget/cda:patientRole")
	if role == nil {
		return Patient{}, ErrPatientDataMissing
	}

	p := Patient{
		MRN: attrOf(role, "cda:id", "extension"),
	}
	if el := xmltree.FindFirst(role, "cda:patient"); el != nil {
		p.GivenName = textOf(el, "cda:name/cda:given")
		p.FamilyName = textOf(el, "cda:name/cda:family")
		p.DOB = attrOf(el, "cda:birthTime", "value")
		p.Gender = attrOf(el, "cda:administrativeGenderCode", "displayName")
		p.MaritalStatus = attrOf(el, "cda:maritalStatusCode", "displayName")
		p.Race = attrOf(el, "cda:raceCode", "displayName")
		p.Ethnicity = attrOf(el, "cda:ethnicGroupCode", "displayName")
		p.Deceased = attrOf(el, "sdtc:deceasedInd", "value") == "true"
		p.DeceasedDate = attrOf(el, "sdtc:deceasedTime", "value")
	}
	return p, nil
}

// ---- Section Ingestors ----

func (in *ingest) allergies(section *xmltree.Node) {
	for _, entry := range xmltree.FindAll(section, ".//cda:entry") {
		if negated(entry) {
			continue
		}
		substance := in.nameOf(entry, ".//cda:participant/cda:participantRole/cda:playingEntity/cda:code")
		if substance == "" {
			continue
		}
		status := attrOf(entry, ".//cda:act/cda:statusCode", "code")
		if status == "" {
			status = attrOf(entry, ".//cda:statusCode", "code")
		}
		in.out.Allergies = append(in.out.Allergies, &Allergy{
			Substance:     substance,
			Reaction:      attrOf(entry, ".//cda:entryRelationship/cda:observation/cda:value", "displayName"),
			Status:        status,
			EffectiveDate: attrOf(entry, ".//cda:effectiveTime/cda:low", "value"),
		})
	}
}

func negated(entry *xmltree.Node) bool {
	for _, obs := range xmltree.FindAll(entry, ".//cda:observation") {
		if obs.Attr("negationInd") == "true" {
			return true
		}
	}
	return false
}

func (in *ingest) problems(section *xmltree.Node) {
	for _, entry := range xmltree.FindAll(section, ".//cda:entry") {
		obs := xmltree.FindFirst(entry, ".//cda:observation")
		if obs == nil {
			continue
		}
		name := in.nameOf(obs, "cda:value")
		if name == "" {
			continue
		}
		in.out.Problems = append(in.out.Problems, &Problem{
			ProblemName:  name,
			Status:       attrOf(obs, ".//cda:entryRelationship/cda:observation/cda:value", "displayName"),
			OnsetDate:    attrOf(obs, "cda:effectiveTime/cda:low", "value"),
			ResolvedDate: attrOf(obs, "cda:effectiveTime/cda:high", "value"),
		})
	}
}

func (in *ingest) medications(section *xmltree.Node) {
	for _, admin := range xmltree.FindAll(section, ".//cda:entry/cda:substanceAdministration") {
		name := in.nameOf(admin, ".//cda:consumable/cda:manufacturedProduct/cda:manufacturedMaterial/cda:code")
		if name == "" {
			continue
		}
		in.out.Medications = append(in.out.Medications, &Medication{
			MedicationName: name,
			Instructions:   in.instructions(admin),
			Status:         attrOf(admin, "cda:statusCode", "code"),
			StartDate:      attrOf(admin, "cda:effectiveTime/cda:low", "value"),
			EndDate:        attrOf(admin, "cda:effectiveTime/cda:high", "value"),
		})
	}
}

// instructions reads the narrative text of a substanceAdministration. The
// text is either inline or an anchor reference into the section narrative.
func (in *ingest) instructions(admin *xmltree.Node) string {
	text := xmltree.FindFirst(admin, "cda:text")
	if text == nil {
		return ""
	}
	if inline := strings.TrimSpace(text.Text); inline != "" {
		return inline
	}
	if ref := xmltree.FindFirst(text, "cda:reference"); ref != nil {
		if val := ref.Attr("value"); strings.HasPrefix(val, "#") {
			if target := xmltree.FindByID(in.root, val[1:]); target != nil {
				return target.DeepText()
			}
		}
	}
	return ""
}

func (in *ingest) immunizations(section *xmltree.Node) {
	for _, admin := range xmltree.FindAll(section, ".//cda:entry/cda:substanceAdministration") {
		name := in.nameOf(admin, ".//cda:consumable/cda:manufacturedProduct/cda:manufacturedMaterial/cda:code")
		if name == "" {
			continue
		}
		date := attrOf(admin, "cda:effectiveTime", "value")
		if date == "" {
			date = attrOf(admin, "cda:effectiveTime/cda:low", "value")
		}
		in.out.Immunizations = append(in.out.Immunizations, &Immunization{
			VaccineName:      name,
			DateAdministered: date,
		})
	}
}

func (in *ingest) vitals(section *xmltree.Node) {
	for _, obs := range xmltree.FindAll(section, ".//cda:component/cda:observation") {
		sign := in.nameOf(obs, "cda:code")
		if sign == "" {
			continue
		}
		in.out.Vitals = append(in.out.Vitals, &Vital{
			VitalSign:     sign,
			Value:         attrOf(obs, "cda:value", "value"),
			Unit:          attrOf(obs, "cda:value", "unit"),
			EffectiveDate: attrOf(obs, "cda:effectiveTime", "value"),
		})
	}
}

func (in *ingest) results(section *xmltree.Node) {
	organizers := xmltree.FindAll(section, ".//cda:organizer")
	if len(organizers) == 0 {
		// Some exports put result observations directly under components.
		for _, obs := range xmltree.FindAll(section, ".//cda:component/cda:observation") {
			in.resultObservation(obs, "")
		}
		return
	}
	for _, org := range organizers {
		panel := in.nameOf(org, "cda:code")
		for _, obs := range xmltree.FindAll(org, ".//cda:observation") {
			in.resultObservation(obs, panel)
		}
	}
}

func (in *ingest) resultObservation(obs *xmltree.Node, panel string) {
	name := in.nameOf(obs, "cda:code")
	if name == "" {
		return
	}
	if panel != "" && panel != name {
		name = panel + ": " + name
	}
	value := ""
	unit := ""
	if val := xmltree.FindFirst(obs, "cda:value"); val != nil {
		value = val.Attr("value")
		if value == "" {
			value = val.Attr("displayName")
		}
		if value == "" {
			value = strings.TrimSpace(val.Text)
		}
		unit = val.Attr("unit")
	}
	in.out.Results = append(in.out.Results, &LabResult{
		TestName:       name,
		Value:          value,
		Unit:           unit,
		ReferenceRange: textOf(obs, ".//cda:referenceRange/cda:observationRange/cda:text"),
		Interpretation: attrOf(obs, "cda:interpretationCode", "displayName"),
		EffectiveDate:  attrOf(obs, "cda:effectiveTime", "value"),
	})
}

func (in *ingest) procedures(section *xmltree.Node) {
	for _, proc := range xmltree.FindAll(section, ".//cda:entry/cda:procedure") {
		name := in.nameOf(proc, "cda:code")
		if name == "" {
			name = in.nameOf(proc, ".//cda:participant/cda:participantRole/cda:playingDevice/cda:code")
		}
		if name == "" {
			continue
		}
		date := attrOf(proc, "cda:effectiveTime/cda:low", "value")
		if date == "" {
			date = attrOf(proc, "cda:effectiveTime", "value")
		}
		provider := ""
		if nameEl := xmltree.FindFirst(proc, ".//cda:performer/cda:assignedEntity/cda:assignedPerson/cda:name"); nameEl != nil {
			provider = nameEl.DeepText()
		}
		in.out.Procedures = append(in.out.Procedures, &Procedure{
			ProcedureName: name,
			Date:          date,
			Provider:      provider,
		})
	}
}

func (in *ingest) notes(section *xmltree.Node) {
	text := xmltree.FindFirst(section, "cda:text")
	if text == nil {
		return
	}
	content := text.TextLines()
	if content == "" {
		return
	}

	title := textOf(section, "cda:title")
	if title == "" {
		title = "Clinical Note"
	}
	noteType := attrOf(section, "cda:code", "displayName")
	if noteType == "" {
		noteType = "Note"
	}

	// Note dates live on the encounter, not the section; fall back to the
	// document's own effectiveTime.
	date := attrOf(in.root, ".//cda:encompassingEncounter/cda:effectiveTime/cda:low", "value")
	if date == "" {
		date = attrOf(in.root, ".//cda:encompassingEncounter/cda:effectiveTime", "value")
	}
	if date == "" {
		date = attrOf(in.root, "cda:effectiveTime", "value")
	}

	provider := ""
	if enc := xmltree.FindFirst(in.root, ".//cda:encompassingEncounter"); enc != nil {
		if nameEl := xmltree.FindFirst(enc, ".//cda:assignedPerson/cda:name"); nameEl != nil {
			provider = nameEl.DeepText()
		}
	}

	in.out.Notes = append(in.out.Notes, &Note{
		NoteType:    noteType,
		NoteDate:    date,
		NoteTitle:   title,
		NoteContent: content,
		Provider:    provider,
	})
}
