package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mychart/explorer/internal/platform/db"
	"github.com/mychart/explorer/internal/platform/xmltree"
	"github.com/mychart/explorer/internal/store"
)

const sampleCDA = `<?xml version="1.0"?>
<cda:ClinicalDocument xmlns:cda="urn:hl7-org:v3">
  <cda:recordTarget>
    <cda:patientRole>
      <cda:id extension="MRN-7"/>
      <cda:patient>
        <cda:name><cda:given>Grace</cda:given><cda:family>Hopper</cda:family></cda:name>
        <cda:birthTime value="19061209"/>
      </cda:patient>
    </cda:patientRole>
  </cda:recordTarget>
  <cda:component><cda:structuredBody><cda:component><cda:section>
    <cda:templateId root="2.16.840.1.113883.10.20.22.2.6.1"/>
    <cda:entry>
      <cda:act>
        <cda:statusCode code="active"/>
        <cda:effectiveTime><cda:low value="19450909"/></cda:effectiveTime>
        <cda:observation>
          <cda:participant><cda:participantRole><cda:playingEntity>
            <cda:code displayName="Moth dust"/>
          </cda:playingEntity></cda:participantRole></cda:participant>
        </cda:observation>
      </cda:act>
    </cda:entry>
  </cda:section></cda:component></cda:structuredBody></cda:component>
</cda:ClinicalDocument>`

func newTestImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	st := store.New(conn, zerolog.Nop())
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return New(st, zerolog.Nop()), st
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestImportFile(t *testing.T) {
	imp, st := newTestImporter(t)
	path := writeFile(t, "export.xml", sampleCDA)

	n, err := imp.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	_, rows, err := st.Query(context.Background(), "SELECT substance FROM allergies")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "Moth dust" {
		t.Errorf("rows = %v", rows)
	}
}

func TestImportFileReimportIdempotent(t *testing.T) {
	imp, _ := newTestImporter(t)
	path := writeFile(t, "export.xml", sampleCDA)
	ctx := context.Background()

	if _, err := imp.ImportFile(ctx, path); err != nil {
		t.Fatalf("first import: %v", err)
	}
	n, err := imp.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if n != 0 {
		t.Errorf("reimport inserted = %d, want 0", n)
	}
}

func TestImportFilesIsolatesFailures(t *testing.T) {
	imp, st := newTestImporter(t)
	good := writeFile(t, "good.xml", sampleCDA)
	bad := writeFile(t, "bad.xml", "<cda:ClinicalDocument xmlns:cda=\"urn:hl7-org:v3\">")

	results := imp.ImportFiles(context.Background(), []string{bad, good})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !errors.Is(results[0].Err, xmltree.ErrParseFailed) {
		t.Errorf("bad file err = %v, want ErrParseFailed", results[0].Err)
	}
	if results[1].Err != nil || results[1].Inserted != 1 {
		t.Errorf("good file result = %+v", results[1])
	}

	_, rows, err := st.Query(context.Background(), "SELECT id FROM allergies")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("allergies = %d, want 1 (good file only)", len(rows))
	}
}

func TestImportMissingFile(t *testing.T) {
	imp, _ := newTestImporter(t)
	if _, err := imp.ImportFile(context.Background(), "/nonexistent/file.xml"); err == nil {
		t.Fatal("want error for missing file")
	}
}
