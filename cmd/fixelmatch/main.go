package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fixelmatch/internal/models"
	"fixelmatch/pkg/config"
	"fixelmatch/pkg/correspondence"
	"fixelmatch/pkg/fixel"
	"fixelmatch/pkg/visualization"
)

func main() {
	// Parse command line arguments
	sourceDir := flag.String("source", "", "Source fixel dataset directory")
	targetDir := flag.String("target", "", "Target fixel dataset directory")
	outputDir := flag.String("output", "", "Output correspondence directory (must not exist)")
	sourceData := flag.String("source-data", "density.bin", "Per-fixel density data file within the source dataset")
	targetData := flag.String("target-data", "density.bin", "Per-fixel density data file within the target dataset")
	algorithm := flag.String("algorithm", "", "Matching algorithm: nearest, angular or weighted")
	maxAngle := flag.Float64("angle", 0, "Maximum acceptance angle in degrees (nearest algorithm)")
	maxOrigins := flag.Int("max-origins", 0, "Maximum source fixels per target fixel (combinatorial algorithms)")
	maxObjectives := flag.Int("max-objectives", 0, "Maximum target fixels per source fixel (combinatorial algorithms)")
	alpha := flag.Float64("alpha", 0, "Fan-out multiplicity cost constant (weighted algorithm)")
	beta := flag.Float64("beta", 0, "Coverage cost constant (weighted algorithm)")
	costPath := flag.String("cost", "", "Export the per-voxel optimal cost to a volume file")
	costSlicesDir := flag.String("cost-slices", "", "Directory to save z-axis slice images of the cost volume")
	remappedDir := flag.String("remapped", "", "Export the remapped source fixels to a new fixel dataset directory")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: all available)")
	configPath := flag.String("config", "fixelmatch.yaml", "Configuration file path")
	flag.Parse()

	// Validate inputs
	if *sourceDir == "" || *targetDir == "" || *outputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration; explicitly set flags override config values
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "algorithm":
			cfg.Matching.Algorithm = *algorithm
		case "angle":
			cfg.Matching.MaxAngle = *maxAngle
		case "max-origins":
			cfg.Matching.MaxOrigins = *maxOrigins
		case "max-objectives":
			cfg.Matching.MaxObjectives = *maxObjectives
		case "alpha":
			cfg.Matching.Alpha = *alpha
		case "beta":
			cfg.Matching.Beta = *beta
		case "cores":
			cfg.Processing.NumCores = *numCores
		}
	})

	// Refuse to run against an existing output location rather than
	// leaving a half-written correspondence behind
	if _, err := os.Stat(*outputDir); err == nil {
		log.Fatalf("Output correspondence directory %q already exists; erase it manually to recompute", *outputDir)
	}

	fmt.Println("================================")
	fmt.Println("FIXEL CORRESPONDENCE MATCHING")
	fmt.Printf("Algorithm: %s\n", cfg.Matching.Algorithm)
	fmt.Println("================================")

	// Open both datasets and their density data
	source, err := fixel.Open(*sourceDir)
	if err != nil {
		log.Fatalf("Failed to open source dataset: %v", err)
	}
	target, err := fixel.Open(*targetDir)
	if err != nil {
		log.Fatalf("Failed to open target dataset: %v", err)
	}
	sourceValues, err := source.LoadData(*sourceData)
	if err != nil {
		log.Fatalf("Failed to load source density data: %v", err)
	}
	targetValues, err := target.LoadData(*targetData)
	if err != nil {
		log.Fatalf("Failed to load target density data: %v", err)
	}
	fmt.Printf("Source: %d fixels on a %v grid\n", source.NumFixels(), source.Dimensions())
	fmt.Printf("Target: %d fixels on a %v grid\n", target.NumFixels(), target.Dimensions())

	alg, err := buildAlgorithm(cfg)
	if err != nil {
		log.Fatalf("Invalid matching configuration: %v", err)
	}

	matcher, err := correspondence.NewMatcher(source, target, sourceValues, targetValues, alg)
	if err != nil {
		log.Fatalf("Failed to set up matching: %v", err)
	}

	var costVolume *models.Volume
	if *costPath != "" || *costSlicesDir != "" {
		costVolume, err = matcher.EnableCostVolume()
		if err != nil {
			log.Fatalf("Cannot export cost volume: %v", err)
		}
	}

	startTime := time.Now()
	if err := matcher.Run(cfg.Processing.NumCores); err != nil {
		log.Fatalf("Matching failed: %v", err)
	}
	fmt.Printf("Matching completed in %.2f seconds using %d cores\n",
		time.Since(startTime).Seconds(), cfg.Processing.NumCores)

	if err := matcher.Mapping().Save(*outputDir); err != nil {
		log.Fatalf("Failed to save correspondence: %v", err)
	}
	fmt.Printf("Correspondence saved to: %s\n", *outputDir)

	if costVolume != nil {
		mean, max := correspondence.CostSummary(costVolume)
		fmt.Printf("Per-voxel cost: mean %.4f, max %.4f\n", mean, max)

		if *costPath != "" {
			if err := fixel.SaveVolume(*costPath, costVolume); err != nil {
				log.Fatalf("Failed to save cost volume: %v", err)
			}
			fmt.Printf("Cost volume saved to: %s\n", *costPath)
		}
		if *costSlicesDir != "" {
			viewer := visualization.NewViewer(costVolume)
			if err := viewer.SaveSliceSequence("z", *costSlicesDir); err != nil {
				log.Printf("Warning: Failed to save cost slices: %v", err)
			} else {
				fmt.Printf("Cost slice images saved to: %s\n", *costSlicesDir)
			}
		}
	}

	if *remappedDir != "" {
		if err := matcher.ExportRemapped(*remappedDir); err != nil {
			log.Fatalf("Failed to export remapped source fixels: %v", err)
		}
		fmt.Printf("Remapped source fixels saved to: %s\n", *remappedDir)
	}
}

// buildAlgorithm instantiates the configured matching algorithm.
func buildAlgorithm(cfg *config.Config) (correspondence.Algorithm, error) {
	params := correspondence.CombinatorialParams{
		MaxOrigins:       cfg.Matching.MaxOrigins,
		MaxObjectives:    cfg.Matching.MaxObjectives,
		Alpha:            cfg.Matching.Alpha,
		Beta:             cfg.Matching.Beta,
		PruningMinFixels: cfg.Matching.PruningMinFixels,
		CostResolution:   cfg.Matching.CostResolution,
	}
	switch cfg.Matching.Algorithm {
	case "nearest":
		return correspondence.NewNearest(cfg.Matching.MaxAngle)
	case "angular":
		return correspondence.NewCombinatorial(correspondence.VariantAngular, params)
	case "weighted":
		return correspondence.NewCombinatorial(correspondence.VariantWeighted, params)
	}
	return nil, fmt.Errorf("unknown algorithm %q (options are: nearest, angular, weighted)", cfg.Matching.Algorithm)
}
