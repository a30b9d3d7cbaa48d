// Package pipeline runs the full screen analysis: both detectors
// concurrently, fusion, layout grouping, provenance records and the
// optional labeling pass.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/screen-elements-mcp/internal/detection"
	"github.com/ironsheep/screen-elements-mcp/internal/fusion"
	"github.com/ironsheep/screen-elements-mcp/internal/labeling"
	"github.com/ironsheep/screen-elements-mcp/internal/layout"
	"github.com/ironsheep/screen-elements-mcp/internal/logging"
	"github.com/ironsheep/screen-elements-mcp/internal/provenance"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Config bundles the stage configurations.
type Config struct {
	Fusion   fusion.Config
	Layout   layout.Config
	Labeling labeling.Config
}

// DefaultConfig returns the defaults of every stage.
func DefaultConfig() Config {
	return Config{
		Fusion:   fusion.DefaultConfig(),
		Layout:   layout.DefaultConfig(),
		Labeling: labeling.DefaultConfig(),
	}
}

// Validate checks every stage.
func (c Config) Validate() error {
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	return c.Labeling.Validate()
}

// Timing records the wall time of each stage.
type Timing struct {
	Detection time.Duration `json:"detection"`
	Fusion    time.Duration `json:"fusion"`
	Grouping  time.Duration `json:"grouping"`
	Labeling  time.Duration `json:"labeling"`
	Total     time.Duration `json:"total"`
}

// Analysis is the outcome of one run. Everything but the tracker is fixed
// once the run returns; annotations keep arriving through Tracker.
type Analysis struct {
	RunID     string
	CreatedAt time.Time
	Size      screen.Size

	Objects  []screen.Detection
	Texts    []screen.Detection
	Elements []screen.Element
	Fusion   fusion.Stats
	Layout   *layout.Result
	Tracker  *provenance.Tracker

	// Labeling is nil when no labeling pass ran.
	Labeling *labeling.Summary
	Timing   Timing
}

// Records returns the current provenance records.
func (a *Analysis) Records() provenance.Records {
	return a.Tracker.Snapshot()
}

// Analyzer runs the pipeline. It is safe for concurrent use as long as its
// detectors and labeler are.
type Analyzer struct {
	objects detection.Detector
	texts   detection.Detector
	labeler labeling.Labeler
	cfg     Config
	logger  *slog.Logger
}

// New creates an analyzer. labeler may be nil; labeling then never runs.
// cfg is validated before anything else.
func New(objects, texts detection.Detector, labeler labeling.Labeler, cfg Config, logger *slog.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if objects == nil || texts == nil {
		return nil, fmt.Errorf("both detectors are required")
	}
	return &Analyzer{
		objects: objects,
		texts:   texts,
		labeler: labeler,
		cfg:     cfg,
		logger:  logging.OrDiscard(logger),
	}, nil
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() Config { return a.cfg }

// LabelingEnabled reports whether Analyze runs a labeling pass.
func (a *Analyzer) LabelingEnabled() bool {
	return a.labeler != nil && a.cfg.Labeling.Enabled
}

// Analyze detects, fuses and groups the elements of img, then labels the
// groups when labeling is enabled.
//
// Any detector failure aborts the run with *screen.UpstreamDetectionError.
// Cancellation during labeling is not an error: the analysis is returned
// with whatever annotations arrived.
func (a *Analyzer) Analyze(ctx context.Context, img image.Image) (*Analysis, error) {
	start := time.Now()

	objects, texts, err := a.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	detected := time.Since(start)

	an, err := a.Process(screen.SizeOf(img), objects, texts)
	if err != nil {
		return nil, err
	}
	an.Timing.Detection = detected

	if a.LabelingEnabled() {
		a.Label(ctx, img, an)
	}

	an.Timing.Total = time.Since(start)
	a.logger.Info("analysis complete",
		"run", an.RunID,
		"objects", len(an.Objects),
		"texts", len(an.Texts),
		"elements", len(an.Elements),
		"groups", an.Layout.Summary.TotalGroups,
		"duration", an.Timing.Total)
	return an, nil
}

// detect runs both detectors concurrently and tags their output. Fusion
// must not start before both have returned.
func (a *Analyzer) detect(ctx context.Context, img image.Image) ([]screen.Detection, []screen.Detection, error) {
	var objCands, textCands []screen.Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := a.objects.Detect(gctx, img)
		if err != nil {
			return &screen.UpstreamDetectionError{Source: screen.SourceObject, Err: err}
		}
		objCands = c
		return nil
	})
	g.Go(func() error {
		c, err := a.texts.Detect(gctx, img)
		if err != nil {
			return &screen.UpstreamDetectionError{Source: screen.SourceText, Err: err}
		}
		textCands = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return screen.TagDetections(screen.SourceObject, objCands), screen.TagDetections(screen.SourceText, textCands), nil
}

// Process fuses and groups already tagged detections of an image of the
// given size. It is pure apart from the run id and timing.
func (a *Analyzer) Process(size screen.Size, objects, texts []screen.Detection) (*Analysis, error) {
	an := &Analysis{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now(),
		Size:      size,
		Objects:   objects,
		Texts:     texts,
	}

	t := time.Now()
	elements, stats, err := fusion.Fuse(objects, texts, a.cfg.Fusion)
	if err != nil {
		return nil, fmt.Errorf("fusion failed: %w", err)
	}
	an.Elements = elements
	an.Fusion = stats
	an.Timing.Fusion = time.Since(t)

	t = time.Now()
	res, err := layout.Group(elements, size, a.cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("grouping failed: %w", err)
	}
	records, err := provenance.BuildInitialRecords(res, elements)
	if err != nil {
		return nil, fmt.Errorf("building records failed: %w", err)
	}
	an.Layout = res
	an.Tracker = provenance.NewTracker(records, a.logger)
	an.Timing.Grouping = time.Since(t)

	a.logger.Debug("fused and grouped",
		"run", an.RunID,
		"discarded", stats.DiscardedSmall,
		"duplicates", stats.DuplicatesRemoved,
		"efficiency", res.Summary.GroupingEfficiency)
	return an, nil
}

// Label runs one labeling pass over an and records its summary. It does
// nothing when the analyzer has no labeler.
func (a *Analyzer) Label(ctx context.Context, img image.Image, an *Analysis) {
	if a.labeler == nil {
		return
	}
	t := time.Now()
	sum := labeling.Run(ctx, img, an.Layout, an.Tracker, a.labeler, a.cfg.Labeling, a.logger.With("run", an.RunID))
	an.Labeling = &sum
	an.Timing.Labeling = time.Since(t)
}
