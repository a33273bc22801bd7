package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fatih/color"
	"github.com/nfnt/resize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"

	"github.com/ayusman/signlink/internal/app"
	"github.com/ayusman/signlink/internal/capture"
	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/vision"
)

// tilePreviewSize is the edge length of dumped tile previews.
const tilePreviewSize = 200

var classifyOpts struct {
	fit       bool
	dumpTiles string
}

var classifyCmd = &cobra.Command{
	Use:   "classify <image|dir>...",
	Short: "Run still images through the recognition pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClassify(args)
	},
}

func init() {
	classifyCmd.Flags().BoolVarP(&classifyOpts.fit, "fit", "f", false, "Scale each image to the region of interest instead of cropping it like a camera frame")
	classifyCmd.Flags().StringVarP(&classifyOpts.dumpTiles, "dump-tiles", "d", "", "Write a PNG preview of every classifier tile to this directory")

	rootCmd.AddCommand(classifyCmd)
}

type classifyResult struct {
	path   string
	result app.Result
	err    error
}

func runClassify(args []string) error {
	paths, err := collectImages(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images found in %s", strings.Join(args, ", "))
	}

	if classifyOpts.dumpTiles != "" {
		if err := os.MkdirAll(classifyOpts.dumpTiles, 0755); err != nil {
			return fmt.Errorf("failed to create tile directory: %w", err)
		}
	}

	model, err := classifier.NewONNXClassifier(classifier.ONNXConfig{
		ModelPath:         cfg.ModelPath,
		InputName:         cfg.ModelInput,
		OutputName:        cfg.ModelOutput,
		SharedLibraryPath: cfg.ORTLib,
	})
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	adapter := classifier.NewAdapter(model)
	defer adapter.Close()

	p := app.NewPipeline(adapter, capture.ROI, vision.DefaultSkinRange())
	p.KeepTiles(classifyOpts.dumpTiles != "")

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("🔍 Classifying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	results := make([]classifyResult, 0, len(paths))
	for _, path := range paths {
		res, err := classifyImage(p, path)
		if err == nil && res.Tile != nil {
			err = dumpTile(res.Tile, path)
		}
		results = append(results, classifyResult{path: path, result: res, err: err})
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	printResults(results)
	return nil
}

// collectImages expands directories into the image files they contain.
func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImage(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp":
		return true
	}
	return false
}

// loadImage decodes path, using the webp decoder for .webp files.
func loadImage(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return webp.Decode(f)
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}

func classifyImage(p *app.Pipeline, path string) (app.Result, error) {
	img, err := loadImage(path)
	if err != nil {
		return app.Result{}, fmt.Errorf("failed to decode: %w", err)
	}

	if classifyOpts.fit {
		roi := p.ROI()
		img = imaging.Fill(img, roi.Dx(), roi.Dy(), imaging.Center, imaging.Lanczos)
	}

	// ImageToMatRGB yields OpenCV's BGR channel order.
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return app.Result{}, fmt.Errorf("failed to convert: %w", err)
	}
	defer bgr.Close()

	if !classifyOpts.fit {
		return p.ProcessFrame(bgr)
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)
	return p.ProcessROI(rgb)
}

// dumpTile writes an upscaled preview of tile next to the other previews.
func dumpTile(tile *image.Gray, src string) error {
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + "_tile.png"
	preview := resize.Resize(tilePreviewSize, tilePreviewSize, tile, resize.NearestNeighbor)
	if err := imaging.Save(preview, filepath.Join(classifyOpts.dumpTiles, name)); err != nil {
		return fmt.Errorf("failed to write tile: %w", err)
	}
	return nil
}

func printResults(results []classifyResult) {
	found := color.New(color.FgGreen, color.Bold)
	missing := color.New(color.FgYellow)
	failed := color.New(color.FgRed)

	var hits int
	for _, r := range results {
		switch {
		case r.err != nil:
			failed.Printf("%-40s error: %v\n", r.path, r.err)
		case !r.result.Found():
			missing.Printf("%-40s no hand\n", r.path)
		default:
			hits++
			pred := r.result.Prediction
			found.Printf("%-40s %s", r.path, pred.Label)
			fmt.Printf("  %.1f%%  box %v\n", pred.Confidence, r.result.Box)
		}
	}
	fmt.Printf("\n%d/%d images classified\n", hits, len(results))
}
