// Command ifcslim shrinks IFC building models by content deduplication and
// exports their geometry as Wavefront OBJ.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/ifcslim/core/fingerprint"
	"github.com/FocuswithJustin/ifcslim/core/geom"
	"github.com/FocuswithJustin/ifcslim/core/graph"
	"github.com/FocuswithJustin/ifcslim/core/pipeline"
	"github.com/FocuswithJustin/ifcslim/core/sqlite"
	"github.com/FocuswithJustin/ifcslim/core/step"
	"github.com/FocuswithJustin/ifcslim/internal/config"
	"github.com/FocuswithJustin/ifcslim/internal/history"
	"github.com/FocuswithJustin/ifcslim/internal/logging"
	"github.com/FocuswithJustin/ifcslim/internal/validation"
)

const version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"YAML configuration file" type:"existingfile"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`

	Optimize    OptimizeCmd    `cmd:"" help:"Deduplicate an IFC file and optionally export OBJ geometry"`
	Export      ExportCmd      `cmd:"" help:"Export OBJ geometry without deduplicating"`
	Fingerprint FingerprintCmd `cmd:"" help:"Print content fingerprints of entities"`
	Stats       StatsCmd       `cmd:"" help:"Summarise the contents of an IFC file"`
	History     HistoryCmd     `cmd:"" help:"List recorded optimizer runs"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

// settings loads the configuration file, if any, and applies global flags.
func (c *CLI) settings() (*config.Config, error) {
	s := config.Default()
	if c.Config != "" {
		var err error
		if s, err = config.Load(c.Config); err != nil {
			return nil, err
		}
	}
	if c.LogLevel != "" {
		s.LogLevel = c.LogLevel
	}
	if c.LogFormat != "" {
		s.LogFormat = c.LogFormat
	}
	return s, nil
}

// GeometryFlags override the geometry settings of the configuration.
type GeometryFlags struct {
	OBJ         string `name:"obj" help:"OBJ file, or directory with --output-mode=per-product"`
	OutputMode  string `name:"output-mode" help:"OBJ layout (combined, per-product)"`
	Coordinates string `name:"coordinates" help:"Vertex coordinates (bake, relative)"`
	Workers     int    `name:"workers" short:"j" help:"Geometry and fingerprint workers"`
	Timeout     string `name:"timeout" help:"Per-product geometry timeout, e.g. 30s"`
	Strict      bool   `name:"strict" help:"Fail the run on the first product whose geometry fails"`
	NoMTL       bool   `name:"no-mtl" help:"Do not write a material library"`
}

func (f *GeometryFlags) apply(s *config.Config) {
	if f.OutputMode != "" {
		s.OutputMode = f.OutputMode
	}
	if f.Coordinates != "" {
		s.Coordinates = f.Coordinates
	}
	if f.Workers > 0 {
		s.Workers = f.Workers
	}
	if f.Timeout != "" {
		s.ProductTimeout = f.Timeout
	}
	if f.Strict {
		s.SkipOnError = false
	}
	if f.NoMTL {
		s.WriteMTL = false
	}
}

// OptimizeCmd runs the full pipeline.
type OptimizeCmd struct {
	Input string `arg:"" help:"IFC file (plain, .xz or .gz)" type:"existingfile"`
	Out   string `name:"out" short:"o" help:"Reduced IFC file (default: <input>.min.ifc)"`

	Compression    string  `name:"compression" help:"Output compression (none, xz, gzip)"`
	Tolerance      float64 `name:"tolerance" help:"Real quantization step for deduplication"`
	MergeGeometry  bool    `name:"merge-geometry" help:"Merge near-duplicate geometry at the geometry tolerance"`
	DropEmptyPsets bool    `name:"drop-empty-psets" help:"Remove property sets without properties"`
	History        string  `name:"history" help:"Record the run in this SQLite database"`

	UnusedSpaces   bool    `name:"remove-unused-spaces" help:"Remove spaces that contain nothing"`
	Flatten        bool    `name:"flatten-spatial" help:"Remove sites, buildings and storeys that hold nothing"`
	OwnerHistories bool    `name:"merge-owner-histories" help:"Keep only the first owner history"`
	EmptyAttrs     bool    `name:"clear-empty-attributes" help:"Set empty strings and NOTDEFINED enumerations to $"`
	MinVolume      float64 `name:"min-volume" help:"Remove elements whose body encloses less than this volume"`

	GeometryFlags `embed:""`
}

func (c *OptimizeCmd) Run(ctx *kong.Context, s *config.Config) error {
	if c.Compression != "" {
		s.Compression = c.Compression
	}
	if c.Tolerance > 0 {
		s.DedupTolerance = c.Tolerance
	}
	if c.MergeGeometry {
		s.MergeGeometry = true
	}
	if c.DropEmptyPsets {
		s.DropEmptyPropertySets = true
	}
	if c.UnusedSpaces {
		s.RemoveUnusedSpaces = true
	}
	if c.Flatten {
		s.FlattenSpatialStructure = true
	}
	if c.OwnerHistories {
		s.MergeOwnerHistories = true
	}
	if c.EmptyAttrs {
		s.ClearEmptyAttributes = true
	}
	if c.MinVolume > 0 {
		s.MinElementVolume = c.MinVolume
	}
	if c.History != "" {
		s.HistoryDB = c.History
	}
	c.apply(s)
	if err := s.Validate(); err != nil {
		return err
	}

	compression, err := step.ParseCompression(s.Compression)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = defaultOutput(c.Input, compression)
	}
	if err := validation.ValidatePath(out); err != nil {
		return fmt.Errorf("output %s: %w", out, err)
	}

	return runPipeline(ctx, pipeline.Config{
		Input:    c.Input,
		Output:   out,
		OBJ:      c.OBJ,
		Settings: s,
	})
}

// defaultOutput derives <name>.min.ifc[.xz|.gz] from the input path.
func defaultOutput(input string, c step.Compression) string {
	base := input
	for _, ext := range []string{".gz", ".xz", ".ifc", ".IFC"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".min.ifc" + c.Extension()
}

// ExportCmd exports geometry of the unreduced model.
type ExportCmd struct {
	Input string `arg:"" help:"IFC file (plain, .xz or .gz)" type:"existingfile"`

	GeometryFlags `embed:""`
}

func (c *ExportCmd) Run(ctx *kong.Context, s *config.Config) error {
	if c.OBJ == "" {
		return fmt.Errorf("--obj is required")
	}
	c.apply(s)
	if err := s.Validate(); err != nil {
		return err
	}
	return runPipeline(ctx, pipeline.Config{
		Input:     c.Input,
		OBJ:       c.OBJ,
		SkipDedup: true,
		Settings:  s,
	})
}

func runPipeline(kctx *kong.Context, cfg pipeline.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	return rep.WriteText(kctx.Stdout)
}

// FingerprintCmd prints entity digests.
type FingerprintCmd struct {
	Input     string   `arg:"" help:"IFC file (plain, .xz or .gz)" type:"existingfile"`
	IDs       []int64  `arg:"" optional:"" help:"Entity identifiers (default: all)"`
	Tolerance float64  `name:"tolerance" help:"Real quantization step"`
	Types     []string `name:"type" short:"t" help:"Only entities of these types"`
}

func (c *FingerprintCmd) Run(ctx *kong.Context, s *config.Config) error {
	g, _, err := step.ReadFile(c.Input)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	tol := s.DedupTolerance
	if c.Tolerance > 0 {
		tol = c.Tolerance
	}
	opts := fingerprint.Options{Tolerance: tol}
	if s.MergeGeometry {
		opts.GeometryTolerance = s.GeometryTolerance
	}
	eng := fingerprint.New(g, opts)

	ids := make([]graph.ID, 0, len(c.IDs))
	for _, id := range c.IDs {
		ids = append(ids, graph.ID(id))
	}
	if len(ids) == 0 {
		for _, e := range g.Entities() {
			if len(c.Types) == 0 || slices.Contains(c.Types, e.Type) {
				ids = append(ids, e.ID)
			}
		}
	}

	for _, id := range ids {
		e, ok := g.Get(id)
		if !ok {
			return fmt.Errorf("entity #%d not found", id)
		}
		d, err := eng.Fingerprint(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Stdout, "#%d\t%s\t%s\n", id, e.Type, d)
	}
	return nil
}

// StatsCmd prints a summary of an IFC file.
type StatsCmd struct {
	Input string `arg:"" help:"IFC file (plain, .xz or .gz)" type:"existingfile"`
	Top   int    `name:"top" default:"20" help:"Number of entity types to list"`
}

func (c *StatsCmd) Run(ctx *kong.Context) error {
	g, size, err := step.ReadFile(c.Input)
	if err != nil {
		return err
	}
	mc := g.ModelContext()
	w := ctx.Stdout

	fmt.Fprintf(w, "File:      %s (%s)\n", c.Input, humanize.Bytes(uint64(size)))
	if mc.Schema != "" {
		fmt.Fprintf(w, "Schema:    %s\n", mc.Schema)
	}
	fmt.Fprintf(w, "Entities:  %s (%s encoded)\n", humanize.Comma(int64(g.Len())), humanize.Bytes(uint64(g.EncodedSize())))
	fmt.Fprintf(w, "Roots:     %s\n", humanize.Comma(int64(len(g.Roots()))))
	fmt.Fprintf(w, "Products:  %s\n", humanize.Comma(int64(len(geom.Products(g)))))
	fmt.Fprintf(w, "Unit:      %g m\n", mc.LengthScale)
	if mc.Precision > 0 {
		fmt.Fprintf(w, "Precision: %g\n", mc.Precision)
	}
	if err := g.Validate(); err != nil {
		fmt.Fprintf(w, "Invalid:   %v\n", err)
	}

	type typeCount struct {
		name  string
		count int
	}
	var counts []typeCount
	for name, n := range g.TypeCounts() {
		counts = append(counts, typeCount{name, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})
	if c.Top > 0 && len(counts) > c.Top {
		counts = counts[:c.Top]
	}
	fmt.Fprintln(w)
	for _, tc := range counts {
		fmt.Fprintf(w, "  %8s  %s\n", humanize.Comma(int64(tc.count)), tc.name)
	}
	return nil
}

// HistoryCmd lists recorded runs.
type HistoryCmd struct {
	DB      string `name:"db" help:"Run history database (default: history_db from the configuration)"`
	Limit   int    `name:"limit" short:"n" default:"20" help:"Number of runs to show (0 for all)"`
	Skipped bool   `name:"skipped" help:"Also list skipped products"`
}

func (c *HistoryCmd) Run(ctx *kong.Context, s *config.Config) error {
	db := c.DB
	if db == "" {
		db = s.HistoryDB
	}
	if db == "" {
		return fmt.Errorf("no history database: pass --db or set history_db")
	}

	bg := context.Background()
	store, err := history.Open(bg, db)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(bg, c.Limit)
	if err != nil {
		return err
	}
	w := ctx.Stdout
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		saved := 0.0
		if r.BytesBefore > 0 {
			saved = 100 * float64(r.BytesBefore-r.BytesAfter) / float64(r.BytesBefore)
		}
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(r.StartedAt))
		fmt.Fprintf(w, "  %s -> %s\n", filepath.Base(r.Input), outputName(r.Output))
		fmt.Fprintf(w, "  entities %s -> %s, %d classes merged, %.1f%% smaller, %d products exported, %d skipped, %s\n",
			humanize.Comma(int64(r.EntitiesBefore)), humanize.Comma(int64(r.EntitiesAfter)),
			r.ClassesMerged, saved, r.ProductsExported, r.ProductsSkipped, r.Duration)
		if c.Skipped {
			for _, sk := range r.Skipped {
				fmt.Fprintf(w, "    #%d %s: %s\n", sk.Product, sk.Kind, sk.Message)
			}
		}
	}
	return nil
}

func outputName(path string) string {
	if path == "" {
		return "(no IFC output)"
	}
	return filepath.Base(path)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(ctx *kong.Context) error {
	fmt.Fprintf(ctx.Stdout, "ifcslim version %s\n", version)
	info := sqlite.GetInfo()
	fmt.Fprintf(ctx.Stdout, "history store: %s (%s)\n", info.Package, info.DriverType)
	return nil
}

// run parses args and executes the selected command.
func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("ifcslim"),
		kong.Description("IFC model optimizer and OBJ exporter"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	s, err := cli.settings()
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(s.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLoggerTo(stderr, level, format)

	return kctx.Run(s)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ifcslim: %v\n", err)
		os.Exit(1)
	}
}
