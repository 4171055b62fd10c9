// Package pipeline runs one staged session document through extraction,
// normalization and loading.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/models"
	"github.com/alim08/fin_quotes/pkg/normalize"
	"github.com/alim08/fin_quotes/pkg/xmlfeed"
)

// Source hands out staged documents by name.
type Source interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Loader persists admitted records. *loader.Coordinator implements it.
type Loader interface {
	Load(ctx context.Context, records []models.QuoteRecord, policy models.MergePolicy) (int64, error)
}

type Deps struct {
	Source   Source
	Resolver *xmlfeed.Resolver
	Loader   Loader
	Policy   models.MergePolicy
	Log      *zap.Logger
}

// Result summarizes one run.
type Result struct {
	Document     string                         `json:"document"`
	Namespaces   []string                       `json:"namespaces"`
	Elements     int                            `json:"elements"`
	Admitted     int                            `json:"admitted"`
	Rejected     map[normalize.RejectReason]int `json:"rejected"`
	Warnings     map[string]int                 `json:"coercion_warnings"`
	RowsAffected int64                          `json:"rows_affected"`
	Duration     time.Duration                  `json:"duration"`
}

type Pipeline struct {
	deps      Deps
	extractor *xmlfeed.Extractor
	log       *zap.Logger
}

func New(deps Deps) *Pipeline {
	log := logger.Or(deps.Log)
	return &Pipeline{
		deps:      deps,
		extractor: xmlfeed.NewExtractor(deps.Resolver, log),
		log:       log,
	}
}

// Run processes the document called name. A document that fails to parse
// never reaches the loader.
func (p *Pipeline) Run(ctx context.Context, name string) (Result, error) {
	start := time.Now()
	res := Result{Document: name}
	log := p.log.With(zap.String("document", name), zap.String("policy", p.deps.Policy.String()))

	data, err := p.deps.Source.Get(ctx, name)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", name, err)
	}

	res.Namespaces, err = p.deps.Resolver.Resolve(bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, err)
	}
	if len(res.Namespaces) == 0 {
		log.Warn("document holds no price reports", zap.Strings("candidates", p.deps.Resolver.Candidates()))
		res.Duration = time.Since(start)
		return res, nil
	}

	raws, err := p.extractor.Extract(bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, err)
	}
	res.Elements = len(raws)

	n := normalize.NewNormalizer()
	records := n.NormalizeAll(raws)
	stats := n.Stats()
	res.Admitted = stats.Admitted
	res.Rejected = stats.Rejected
	res.Warnings = stats.Warnings

	if len(records) > 0 {
		res.RowsAffected, err = p.deps.Loader.Load(ctx, records, p.deps.Policy)
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
	}

	res.Duration = time.Since(start)
	log.Info("document loaded",
		zap.Strings("namespaces", res.Namespaces),
		zap.Int("elements", res.Elements),
		zap.Int("admitted", res.Admitted),
		zap.Int("rejected", stats.RejectedTotal()),
		zap.Any("rejections", res.Rejected),
		zap.Any("coercion_warnings", res.Warnings),
		zap.Int64("rows_affected", res.RowsAffected),
		zap.Duration("took", res.Duration))
	return res, nil
}
