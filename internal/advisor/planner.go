package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const categoriesPrompt = `You are helping retrieve data from a patient's personal medical record.
Given the database schema and the patient's current concern, list which
categories of clinical data are worth looking at (for example: medications,
allergies, problems, results, vitals, immunizations, procedures, notes).

Database schema:
%s

Patient's concern: %s

Respond with a JSON object of exactly this shape:
{"categories": ["...", "..."]}`

const queriesPrompt = `You are writing SQLite queries against a patient's personal medical record.
Generate read-only SELECT statements that retrieve the data most relevant to
the patient's concern, covering these categories: %s.

Database schema:
%s

Rules:
- SQLite syntax, SELECT statements only, one statement per query.
- The database holds a single patient; filter with patient_id = ? where the
  column exists.
- Prefer a handful of focused queries over one sprawling join.

Patient's concern: %s

Respond with a JSON object of exactly this shape:
{"queries": ["SELECT ...", "SELECT ..."]}`

const repairPrompt = `The SQLite query below failed. Rewrite it so it runs against this schema.
Keep it a single read-only SELECT statement and keep the intent unchanged.

Database schema:
%s

Failed query: %s
Error: %s

Respond with a JSON object of exactly this shape:
{"query": "SELECT ..."}`

// PlanCategories asks which kinds of clinical data bear on the symptoms.
func (a *Advisor) PlanCategories(ctx context.Context, symptoms, schema string) ([]string, error) {
	out, err := a.llm.GenerateJSON(ctx, fmt.Sprintf(categoriesPrompt, schema, symptoms))
	if err != nil {
		return nil, fmt.Errorf("%w: categories call: %v", ErrPlanningFailed, err)
	}
	var decoded struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode categories: %v", ErrPlanningFailed, err)
	}
	if len(decoded.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories returned", ErrPlanningFailed)
	}
	return decoded.Categories, nil
}

// PlanQueries asks for the concrete SQL statements covering the categories.
func (a *Advisor) PlanQueries(ctx context.Context, symptoms string, categories []string, schema string) ([]string, error) {
	prompt := fmt.Sprintf(queriesPrompt, strings.Join(categories, ", "), schema, symptoms)
	out, err := a.llm.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: queries call: %v", ErrPlanningFailed, err)
	}
	var decoded struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode queries: %v", ErrPlanningFailed, err)
	}
	if len(decoded.Queries) == 0 {
		return nil, fmt.Errorf("%w: no queries returned", ErrPlanningFailed)
	}
	return decoded.Queries, nil
}

// RepairQuery makes one correction attempt for a failed query. The repaired
// statement is sanitized like any other; "" means no usable repair.
func (a *Advisor) RepairQuery(ctx context.Context, query, errMsg, schema string) (string, error) {
	out, err := a.llm.GenerateJSON(ctx, fmt.Sprintf(repairPrompt, schema, query, errMsg))
	if err != nil {
		return "", fmt.Errorf("repair call: %w", err)
	}
	var decoded struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &decoded); err != nil {
		return "", fmt.Errorf("decode repair: %w", err)
	}
	return SanitizeSQL(decoded.Query), nil
}

// stripJSONFences tolerates models that wrap JSON in a markdown fence even
// when asked not to.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
