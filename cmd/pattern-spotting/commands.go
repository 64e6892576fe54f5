package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/mseitzer/pattern-spotting/internal/blobstore"
	"github.com/mseitzer/pattern-spotting/internal/catalog"
	"github.com/mseitzer/pattern-spotting/internal/config"
	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/evaluate"
	"github.com/mseitzer/pattern-spotting/internal/features"
	imgutil "github.com/mseitzer/pattern-spotting/internal/imaging"
	"github.com/mseitzer/pattern-spotting/internal/logging"
	"github.com/mseitzer/pattern-spotting/internal/ocr"
	"github.com/mseitzer/pattern-spotting/internal/search"
	"github.com/mseitzer/pattern-spotting/internal/server"
	"github.com/mseitzer/pattern-spotting/internal/store"
)

// newFlagSet returns a flag set with the -config flag every command takes.
func newFlagSet(name, args string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "configuration file (YAML or JSON)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pattern-spotting %s [options] %s\n\nOptions:\n", name, args)
		fs.PrintDefaults()
	}
	return fs, cfgPath
}

// setup loads the configuration and configures logging.
func setup(cfgPath string) (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	blobs, err := blobstore.FromConfig(ctx, cfg.Blobs)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return blobs, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ext, err := features.NewExtractor(cfg.Model)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, store.Options{
		Dir:       cfg.Features,
		Name:      cfg.Name,
		Blobs:     blobs,
		Extractor: ext,
		ImageRoot: cfg.ImageRoot,
	})
}

func runServe(args []string) error {
	fs, cfgPath := newFlagSet("serve", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := server.Options{Corpus: st, Search: cfg.SearchOptions()}
	if cfg.Database != "" {
		cat, err := catalog.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer cat.Close()
		opts.Catalog = cat
	}
	if cfg.OCR.Enabled {
		opts.OCR = ocr.NewReader(ocr.Options{
			Languages:      cfg.OCR.Languages,
			TessdataPrefix: cfg.OCR.Tessdata,
			MinSide:        cfg.OCR.MinSide,
		})
	}

	logrus.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
		"store":   st.Name(),
		"images":  st.Len(),
	}).Info("pattern-spotting server starting")

	err = server.New(opts).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// parseROI parses "x1,y1,x2,y2".
func parseROI(s string) (*image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("roi %q: want x1,y1,x2,y2", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("roi %q: %w", s, err)
		}
		v[i] = n
	}
	r, err := imgutil.ROI(v[0], v[1], v[2], v[3])
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func runQuery(args []string) error {
	fs, cfgPath := newFlagSet("query", "<image>")
	roi := fs.String("roi", "", "region of interest x1,y1,x2,y2 (half-open pixels)")
	top := fs.Int("top", 10, "number of results")
	noLocalize := fs.Bool("no-localize", false, "skip localization and reranking")
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected one query image")
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	img, err := imaging.Open(fs.Arg(0), imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	var region *image.Rectangle
	if *roi != "" {
		if region, err = parseROI(*roi); err != nil {
			return err
		}
	}

	opts := cfg.SearchOptions()
	opts.TopN = *top
	if *noLocalize {
		opts.Localize = false
		opts.Rerank = false
	}
	res, err := search.SearchROI(ctx, st, img, region, opts)
	if err != nil {
		return err
	}

	type hit struct {
		Rank  int     `json:"rank"`
		Image string  `json:"image"`
		Score float32 `json:"score"`
		BBox  any     `json:"bbox,omitempty"`
	}
	hits := make([]hit, res.Len())
	for i, idx := range res.Indices {
		meta, err := st.Metadata(idx)
		if err != nil {
			return err
		}
		hits[i] = hit{Rank: i + 1, Image: meta.Image, Score: res.Similarities[i]}
		if res.Boxes != nil {
			hits[i].BBox = res.Boxes[i]
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	for _, h := range hits {
		if h.BBox != nil {
			fmt.Printf("%3d  %.4f  %s  %v\n", h.Rank, h.Score, h.Image, h.BBox)
		} else {
			fmt.Printf("%3d  %.4f  %s\n", h.Rank, h.Score, h.Image)
		}
	}
	return nil
}

func runExtract(args []string) error {
	fs, cfgPath := newFlagSet("extract", "<image dir>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected an image directory")
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	ext, err := features.NewExtractor(cfg.Model)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Features, 0o755); err != nil {
		return err
	}
	meta, err := store.Extract(ctx, store.ExtractOptions{
		ImageDir:    fs.Arg(0),
		Blobs:       blobs,
		Extractor:   ext,
		Dir:         cfg.Features,
		Name:        cfg.Name,
		Compression: cfg.CompressionMode(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("extracted %d feature maps into %s\n", len(meta.Images), cfg.Features)
	return nil
}

func runBuild(args []string) error {
	fs, cfgPath := newFlagSet("build", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	pca, err := store.LoadWhitening(cfg.Features, cfg.Name)
	if err != nil {
		return err
	}
	var whitening descriptor.Whitening
	if pca != nil {
		whitening = pca
	}

	res, err := store.Build(ctx, store.BuildOptions{
		Dir:       cfg.Features,
		Name:      cfg.Name,
		Blobs:     blobs,
		Whitening: whitening,
	})
	if err != nil {
		return err
	}
	fmt.Printf("built %d descriptors of dimension %d (%d dropped)\n", res.Rows, res.Dim, len(res.Dropped))
	return nil
}

// readAnnotations parses an annotation file. Crops default to the file's
// directory.
func readAnnotations(path string) ([]evaluate.Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return evaluate.ParseAnnotations(f)
}

func runEvaluate(args []string) error {
	fs, cfgPath := newFlagSet("evaluate", "<annotations>")
	crops := fs.String("crops", "", "crop directory (default: the annotation file's directory)")
	minRelevant := fs.Int("min-relevant", evaluate.MinRelevant, "crops a label needs to be queried")
	report := fs.String("report", "", "write the per-query report as JSON to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected an annotation file")
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	anns, err := readAnnotations(fs.Arg(0))
	if err != nil {
		return err
	}
	if *crops == "" {
		*crops = filepath.Dir(fs.Arg(0))
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := evaluate.Run(ctx, st, anns, evaluate.Options{
		CropDir:     *crops,
		Search:      cfg.SearchOptions(),
		RerankN:     cfg.RerankN,
		MapN:        cfg.MapN,
		MinRelevant: *minRelevant,
	})
	if err != nil {
		return err
	}
	if *report != "" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(*report, data, 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("mAP@%d: %.4f (%d queries)\n", rep.MapN, rep.MAP, len(rep.Queries))
	return nil
}

func runBenchmark(args []string) error {
	fs, cfgPath := newFlagSet("benchmark", "<annotations>")
	crops := fs.String("crops", "", "crop directory (default: the annotation file's directory)")
	warmup := fs.Int("warmup", 10, "untimed queries run first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected an annotation file")
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	anns, err := readAnnotations(fs.Arg(0))
	if err != nil {
		return err
	}
	if *crops == "" {
		*crops = filepath.Dir(fs.Arg(0))
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	timing, err := evaluate.Benchmark(ctx, st, anns, evaluate.Options{
		CropDir: *crops,
		Search:  cfg.SearchOptions(),
		RerankN: cfg.RerankN,
		MapN:    cfg.MapN,
	}, *warmup)
	if err != nil {
		return err
	}
	fmt.Printf("%d queries in %v, %v per query\n", timing.Queries, timing.Total, timing.Mean)
	return nil
}

func catalogUsage() {
	fmt.Fprintln(os.Stderr, "Usage: pattern-spotting catalog [-config file] <subcommand>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Subcommands:")
	fmt.Fprintln(os.Stderr, "  add <path> <url> [date]   Add or update one image")
	fmt.Fprintln(os.Stderr, "  add-folder <dir>          Add every image below dir")
	fmt.Fprintln(os.Stderr, "  list                      List catalogued images")
	fmt.Fprintln(os.Stderr, "  get <path>                Show one image")
}

func runCatalog(args []string) error {
	fs, cfgPath := newFlagSet("catalog", "<subcommand>")
	fs.Usage = catalogUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		catalogUsage()
		return errors.New("missing subcommand")
	}
	cfg, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return errors.New("no database configured")
	}
	cat, err := catalog.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer cat.Close()

	sub, rest := fs.Arg(0), fs.Args()[1:]
	switch sub {
	case "add":
		if len(rest) < 2 || len(rest) > 3 {
			return errors.New("add expects <path> <url> [date]")
		}
		img := catalog.Image{Path: rest[0], URL: rest[1]}
		if len(rest) == 3 {
			img.Date = rest[2]
		}
		return cat.Add(img)

	case "add-folder":
		if len(rest) != 1 {
			return errors.New("add-folder expects <dir>")
		}
		root := cfg.ImageRoot
		if root == "" {
			root = rest[0]
		}
		n, err := cat.AddFolder(root, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("found %d images\n", n)
		return nil

	case "list":
		images, err := cat.List()
		if err != nil {
			return err
		}
		for _, img := range images {
			fmt.Printf("%s\t%s\t%s\n", img.Path, img.URL, img.Date)
		}
		return nil

	case "get":
		if len(rest) != 1 {
			return errors.New("get expects <path>")
		}
		img, err := cat.Get(rest[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(img)
	}
	catalogUsage()
	return fmt.Errorf("unknown catalog subcommand %q", sub)
}
