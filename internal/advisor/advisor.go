// Package advisor turns a symptom description into grounded clinical context
// and a synthesized answer. The pipeline is strictly sequential: plan the
// relevant categories, plan SQL queries, execute them read-only against the
// store, compact the results, and only then synthesize.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mychart/explorer/internal/platform/llm"
	"github.com/mychart/explorer/internal/store"
)

var (
	// ErrPlanningFailed covers both planning calls: transport failures and
	// responses that do not honor the JSON contract.
	ErrPlanningFailed = errors.New("query planning failed")

	// ErrSynthesisFailed is returned when the final generation call fails.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
)

type Advisor struct {
	store  *store.Store
	llm    llm.Client
	logger zerolog.Logger
}

func New(st *store.Store, client llm.Client, logger zerolog.Logger) *Advisor {
	return &Advisor{store: st, llm: client, logger: logger}
}

// Retrieval is the outcome of the data-gathering half of the pipeline. It is
// held in a session until the caller asks for synthesis or discards it.
type Retrieval struct {
	ID         string
	Symptoms   string
	Categories []string
	Queries    []string
	Context    string
	Display    string
	CreatedAt  time.Time
}

// Retrieve runs planning, execution and compaction for a symptom description.
func (a *Advisor) Retrieve(ctx context.Context, symptoms string) (*Retrieval, error) {
	schema, err := a.store.SchemaText(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	categories, err := a.PlanCategories(ctx, symptoms, schema)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Strs("categories", categories).Msg("categories planned")

	queries, err := a.PlanQueries(ctx, symptoms, categories, schema)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Int("queries", len(queries)).Msg("queries planned")

	raw := a.Execute(ctx, schema, queries)
	contextText, display := a.Compact(ctx, symptoms, raw)

	return &Retrieval{
		ID:         uuid.NewString(),
		Symptoms:   symptoms,
		Categories: categories,
		Queries:    queries,
		Context:    contextText,
		Display:    display,
		CreatedAt:  time.Now(),
	}, nil
}

const synthesisPrompt = `You are a careful medical information assistant. Using only the patient
record excerpts below, explain what in this patient's history may be relevant
to their current concern. Do not invent data that is not present. You are not
a doctor and must not give a diagnosis; close by advising the patient to
discuss these findings with their clinician.

%s

Current concern: %s

Relevant patient records:
%s`

// Synthesize issues the final generation call for a completed retrieval.
// Once started it runs to completion; cancelling a session only prevents
// future calls.
func (a *Advisor) Synthesize(ctx context.Context, r *Retrieval) (string, error) {
	demographics := "No patient demographics available."
	if pc, err := a.store.PatientContext(ctx); err == nil {
		demographics = pc.Text()
	} else {
		a.logger.Warn().Err(err).Msg("patient context unavailable")
	}

	prompt := fmt.Sprintf(synthesisPrompt, demographics, r.Symptoms, r.Context)
	out, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty response", ErrSynthesisFailed)
	}
	return out, nil
}
