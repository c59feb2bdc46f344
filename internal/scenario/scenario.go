// Package scenario loads an input document (a control block, recipes,
// prototypes, and region roots; package definitions are not part of the
// accepted document) and wires it into a running kernel Context. JSON is
// used as the concrete encoding, acceptable per spec §6, instead of
// cyclus's native XML.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aristath/simkernel/internal/archetypes"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/aristath/simkernel/internal/resource"
	"github.com/rs/zerolog"
)

// Control mirrors cyclus's <control> block.
type Control struct {
	Duration  int   `json:"duration"`
	DT        int   `json:"dt"`
	Seed      int64 `json:"seed"`
	DumpCount int   `json:"dump_count"`
	Tracking  bool  `json:"tracking"`
}

// RecipeDef is a named nuclide-id -> mass-fraction map, keyed by
// nuclide id as a decimal string (JSON object keys must be strings).
type RecipeDef map[string]float64

// ArchetypeDef is one <prototype> entry: a name, the archetype kind it
// binds to, and kind-specific configuration fields. Only the fields
// relevant to Kind are read; the rest are ignored, matching cyclus's
// per-archetype schema dispatch.
type ArchetypeDef struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	// source
	OutCommod     string  `json:"out_commod"`
	OutRecipe     string  `json:"out_recipe"`
	InventorySize float64 `json:"inventory_size"`
	Throughput    float64 `json:"throughput"`

	// sink
	InCommods  []string `json:"in_commods"`
	MaxInvSize float64  `json:"max_inv_size"`
	Capacity   float64  `json:"capacity"`

	// enrichment
	FeedCommod    string  `json:"feed_commod"`
	ProductCommod string  `json:"product_commod"`
	TailsCommod   string  `json:"tails_commod"`
	TailsAssay    float64 `json:"tails_assay"`
	MaxFeedInv    float64 `json:"max_feed_inv"`
	MaxEnrich     float64 `json:"max_enrich"`
	SWUCapacity   float64 `json:"swu_capacity"`

	// deployinst
	Schedule []ScheduleEntry `json:"schedule"`
}

// ScheduleEntry is one line of a deployinst's build schedule.
type ScheduleEntry struct {
	Time     int    `json:"time"`
	Proto    string `json:"proto"`
	N        int    `json:"n"`
	Lifetime int    `json:"lifetime"`
}

// RegionDef is the scenario's tree root: which institution prototype to
// build under a freshly created, behaviorless region.
type RegionDef struct {
	Name      string `json:"name"`
	InstProto string `json:"inst_proto"`
}

// Document is the full parsed scenario.
type Document struct {
	Control    Control              `json:"control"`
	Recipes    map[string]RecipeDef `json:"recipes"`
	Archetypes []ArchetypeDef       `json:"archetypes"`
	Regions    []RegionDef          `json:"regions"`
}

// Parse decodes a scenario document from r.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, kernerr.Newf(kernerr.ValidationError, "scenario: invalid input document: %v", err)
	}
	if doc.Control.DT <= 0 {
		return nil, kernerr.Newf(kernerr.ValidationError, "scenario: control.dt must be positive")
	}
	if doc.Control.Duration <= 0 {
		return nil, kernerr.Newf(kernerr.ValidationError, "scenario: control.duration must be positive")
	}
	return &doc, nil
}

// Load builds a fresh Context from doc and registers every recipe,
// archetype prototype, and region in it, returning the Context ready
// for a Scheduler to run.
func Load(doc *Document, log zerolog.Logger) (*simctx.Context, error) {
	ctx := simctx.New(simctx.Config{
		Duration:  doc.Control.Duration,
		DT:        doc.Control.DT,
		Seed:      doc.Control.Seed,
		DumpCount: doc.Control.DumpCount,
		Tracking:  doc.Control.Tracking,
	}, log)

	if err := loadRecipes(ctx, doc.Recipes); err != nil {
		return nil, err
	}
	if err := loadArchetypes(ctx, doc.Archetypes); err != nil {
		return nil, err
	}
	if err := loadRegions(ctx, doc.Regions); err != nil {
		return nil, err
	}
	return ctx, nil
}

func loadRecipes(ctx *simctx.Context, recipes map[string]RecipeDef) error {
	for name, def := range recipes {
		frac := make(map[int64]float64, len(def))
		for nucStr, f := range def {
			var nuc int64
			if _, err := fmt.Sscan(nucStr, &nuc); err != nil {
				return kernerr.Newf(kernerr.ValidationError, "scenario: recipe %q: invalid nuclide id %q", name, nucStr)
			}
			frac[nuc] = f
		}
		comp, err := resource.NewComposition(frac)
		if err != nil {
			return kernerr.Newf(kernerr.ValidationError, "scenario: recipe %q: %v", name, err)
		}
		if err := ctx.Recipes.Add(name, comp); err != nil {
			return err
		}
	}
	return nil
}

func loadArchetypes(ctx *simctx.Context, defs []ArchetypeDef) error {
	for _, d := range defs {
		proto, err := buildPrototype(ctx, d)
		if err != nil {
			return err
		}
		if err := ctx.Prototypes.Add(d.Name, proto); err != nil {
			return err
		}
	}
	return nil
}

func buildPrototype(ctx *simctx.Context, d ArchetypeDef) (registry.Prototype, error) {
	switch d.Kind {
	case "source":
		return archetypes.NewSource(ctx, d.OutCommod, d.OutRecipe, d.InventorySize, d.Throughput), nil
	case "sink":
		return archetypes.NewSink(ctx, d.InCommods, "", d.MaxInvSize, d.Capacity), nil
	case "enrichment":
		return archetypes.NewEnrichment(ctx, d.FeedCommod, d.ProductCommod, d.TailsCommod, d.TailsAssay, d.MaxFeedInv, d.MaxEnrich, d.SWUCapacity), nil
	case "deployinst":
		schedule := make([]archetypes.BuildEntry, len(d.Schedule))
		for i, e := range d.Schedule {
			schedule[i] = archetypes.BuildEntry{Time: e.Time, Proto: e.Proto, N: e.N, Lifetime: e.Lifetime}
		}
		return archetypes.NewDeployInst(ctx, schedule), nil
	default:
		return nil, kernerr.Newf(kernerr.ValidationError, "scenario: archetype %q: unknown kind %q", d.Name, d.Kind)
	}
}

func loadRegions(ctx *simctx.Context, regions []RegionDef) error {
	for _, rd := range regions {
		regionProtoName := "__region_" + rd.Name
		if err := ctx.Prototypes.Add(regionProtoName, archetypes.NewRegion(ctx)); err != nil {
			return err
		}
		regAgent, err := ctx.Tree.Register(regionProtoName, ctx.Prototypes, nil)
		if err != nil {
			return err
		}
		if err := ctx.BuildAgent(regAgent, ctx.Now()); err != nil {
			return err
		}

		instAgent, err := ctx.Tree.Register(rd.InstProto, ctx.Prototypes, regAgent)
		if err != nil {
			return err
		}
		if err := ctx.BuildAgent(instAgent, ctx.Now()); err != nil {
			return err
		}
	}
	return nil
}
