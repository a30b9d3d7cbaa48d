package labeling

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/screen-elements-mcp/internal/imaging"
	"github.com/ironsheep/screen-elements-mcp/internal/layout"
	"github.com/ironsheep/screen-elements-mcp/internal/logging"
	"github.com/ironsheep/screen-elements-mcp/internal/provenance"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Summary reports one labeling pass.
type Summary struct {
	Groups    int `json:"groups"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Skipped counts groups never sent because the context ended first.
	Skipped int `json:"skipped"`

	// Items is the number of annotations received across all replies.
	Items    int `json:"items"`
	Warnings int `json:"warnings"`
}

// BuildRequest renders group g of img and describes its slots. Slot boxes
// are translated into the coordinates of the rendered crop.
func BuildRequest(img image.Image, g layout.Group, cfg Config) (Request, error) {
	boxes := make([]screen.BBox, len(g.Members))
	for i, m := range g.Members {
		boxes[i] = m.BBox
	}

	enc, err := imaging.CropGroup(img, boxes, imaging.CropOptions{
		Padding:  cfg.Padding,
		MaxWidth: cfg.MaxImageWidth,
	})
	if err != nil {
		return Request{}, err
	}

	slots := make([]SlotInfo, len(g.Members))
	for i, m := range g.Members {
		slots[i] = SlotInfo{
			SlotID: g.SlotID(i),
			BBox: screen.Box(
				(m.BBox.XMin-enc.Origin.X)*enc.Scale,
				(m.BBox.YMin-enc.Origin.Y)*enc.Scale,
				(m.BBox.XMax-enc.Origin.X)*enc.Scale,
				(m.BBox.YMax-enc.Origin.Y)*enc.Scale,
			),
			ElementID: m.ID,
			Origin:    m.Origin.String(),
		}
	}

	return Request{
		Model:       cfg.Model,
		Group:       g.Label,
		Category:    string(g.Category),
		ImageBase64: enc.ImageBase64,
		MimeType:    enc.MimeType,
		Slots:       slots,
	}, nil
}

// Run sends one request per group of res, at most cfg.MaxConcurrency at a
// time, and merges every reply into tracker as soon as it arrives.
//
// Failures are logged and counted; the affected slots stay unanalyzed.
// When ctx ends, requests not yet started are skipped and Run returns what
// was merged so far. Nothing is retried.
func Run(ctx context.Context, img image.Image, res *layout.Result, tracker *provenance.Tracker, labeler Labeler, cfg Config, logger *slog.Logger) Summary {
	logger = logging.OrDiscard(logger)

	limit := cfg.MaxConcurrency
	if limit < 1 {
		limit = 1
	}

	var (
		mu  sync.Mutex
		sum = Summary{Groups: len(res.Groups)}
	)

	var g errgroup.Group
	g.SetLimit(limit)

	for _, grp := range res.Groups {
		grp := grp
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				sum.Skipped++
				mu.Unlock()
				return nil
			}

			items, err := labelGroup(ctx, img, grp, labeler, cfg)
			if err != nil {
				logger.Warn("labeling failed", "group", grp.Label, "error", err)
				mu.Lock()
				sum.Failed++
				mu.Unlock()
				return nil
			}

			anns, dups := toAnnotations(items)
			tracker.Record(dups)
			warnings := append(dups, tracker.Apply(anns)...)
			logger.Debug("group labeled", "group", grp.Label, "items", len(items), "warnings", len(warnings))

			mu.Lock()
			sum.Succeeded++
			sum.Items += len(items)
			sum.Warnings += len(warnings)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return sum
}

func labelGroup(ctx context.Context, img image.Image, grp layout.Group, labeler Labeler, cfg Config) ([]Item, error) {
	req, err := BuildRequest(img, grp, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return labeler.Label(ctx, req)
}

// toAnnotations keys items by slot id. Items without a slot id are dropped.
// The first item for a slot wins; later ones come back as WarnDuplicate.
func toAnnotations(items []Item) (map[string]provenance.Annotation, []provenance.MergeWarning) {
	out := make(map[string]provenance.Annotation, len(items))
	var dups []provenance.MergeWarning
	for _, it := range items {
		id := strings.TrimSpace(it.SlotID)
		if id == "" {
			continue
		}
		ann := provenance.Annotation{Name: it.Name, Brief: it.Brief}
		if _, seen := out[id]; seen {
			dups = append(dups, provenance.MergeWarning{Kind: provenance.WarnDuplicate, SlotID: id, Annotation: ann})
			continue
		}
		out[id] = ann
	}
	return out, dups
}
