package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/accessor"
	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/config"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/industry"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/ratio"
	"github.com/sells-group/ratio-cli/internal/semantic"
)

// Processor runs the filing chain: verification gate, hierarchy, industry
// detection, mapping, resolution and ratio calculation. It holds only
// read-only configuration and is safe for concurrent use; every filing gets
// its own in-memory state.
type Processor struct {
	cat       *catalog.Catalog
	cfg       config.EngineConfig
	detector  *industry.Detector
	registry  *industry.Registry
	mapper    *semantic.Mapper
	engine    *ratio.Engine
	penalties accessor.Penalties
	now       func() time.Time
}

// NewProcessor creates a Processor over a validated catalog.
func NewProcessor(cat *catalog.Catalog, cfg config.EngineConfig) *Processor {
	return &Processor{
		cat:      cat,
		cfg:      cfg,
		detector: industry.NewDetector(cat),
		registry: industry.NewRegistry(cat),
		mapper:   semantic.NewMapper(cat.Rules(), cfg.MatchThreshold),
		engine: ratio.NewEngine(cat, ratio.Options{
			CrossCheckTolerance: cfg.CrossCheckTolerance,
			CrossCheckPenalty:   cfg.CrossCheckPenalty,
			RequireVerified:     cfg.RequireVerified,
		}),
		penalties: accessor.Penalties{
			Unverified: cfg.UnverifiedPenalty,
			Synonym:    cfg.SynonymPenalty,
			Derivation: cfg.DerivationPenalty,
		},
		now: time.Now,
	}
}

// Catalog returns the catalog the processor was built with.
func (p *Processor) Catalog() *catalog.Catalog { return p.cat }

// Classify builds the forest of in and detects its industry without mapping
// or computing anything.
func (p *Processor) Classify(in *model.FilingInput) (industry.Detection, industry.Model) {
	f := hierarchy.Build(in.FilingID, in.Statements)
	det := p.detector.Detect(f.LocalNames())
	return det, p.registry.ModelFor(det.Category)
}

// Process computes the complete result for one filing. A filing below the
// verification threshold is rejected with a FilingError and produces no
// ratios. Nothing is persisted.
func (p *Processor) Process(ctx context.Context, in *model.FilingInput) (*model.FilingResult, error) {
	if in == nil || in.FilingID == "" {
		return nil, &FilingError{Code: ReasonInvalidInput, Err: eris.New("pipeline: filing id is required")}
	}
	log := zap.L().With(zap.String("filing_id", in.FilingID))

	score := in.Verification.Score
	if score < p.cfg.MinVerificationScore {
		log.Warn("pipeline: filing rejected",
			zap.Float64("verification_score", score),
			zap.Float64("threshold", p.cfg.MinVerificationScore),
		)
		return nil, &FilingError{
			Code:     ReasonFilingRejected,
			FilingID: in.FilingID,
			Err:      fmt.Errorf("verification score %g below %g", score, p.cfg.MinVerificationScore),
		}
	}

	stage := func(name string) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s", name)
		}
		return nil
	}

	if err := stage("hierarchy"); err != nil {
		return nil, err
	}
	forest := hierarchy.Build(in.FilingID, in.Statements)

	if err := stage("industry"); err != nil {
		return nil, err
	}
	det := p.detector.Detect(forest.LocalNames())
	im := p.registry.ModelFor(det.Category)

	if err := stage("mapping"); err != nil {
		return nil, err
	}
	mapped := p.mapper.Map(forest, im.ComponentSet())

	if err := stage("ratios"); err != nil {
		return nil, err
	}
	acc := accessor.New(forest, mapped.Assignments, in.Verification, p.cat, p.penalties)
	ratios, err := p.engine.CalculateAll(ctx, ratio.Filing{
		FilingID:  in.FilingID,
		Category:  im.Category,
		PeriodEnd: in.PeriodEnd,
		Ratios:    im.Ratios,
		Accessor:  acc,
		Checks:    in.Verification.Checks,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: ratios")
	}

	concepts := make([]model.MappedConcept, forest.Len())
	for i := range concepts {
		concepts[i] = model.MappedConcept{
			StructuralConcept: *forest.Node(i),
			Semantic:          mapped.Assignments[i],
			DisplayLabel:      mapped.Labels[i],
		}
	}

	result := &model.FilingResult{
		RunID:             uuid.NewString(),
		FilingID:          in.FilingID,
		Company:           in.Company,
		VerificationScore: score,
		Industry:          p.detector.Classification(det),
		Concepts:          concepts,
		Components:        p.registry.ComponentStates(im, mapped.Candidates, mapped.Assigned),
		Ratios:            ratios,
		Issues:            forest.Issues,
		Ambiguities:       mapped.Ambiguities,
		ProcessedAt:       p.now().UTC(),
	}
	log.Info("pipeline: filing processed",
		zap.String("run_id", result.RunID),
		zap.String("industry", im.Category),
		zap.Int("concepts", len(concepts)),
		zap.Int("ratios", len(ratios)),
		zap.Int("issues", len(forest.Issues)),
	)
	return result, nil
}
