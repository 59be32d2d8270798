package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fixelmatch/pkg/config"
	"fixelmatch/pkg/correspondence"
	"fixelmatch/pkg/fixel"
)

func main() {
	// Parse command line arguments
	sourceDir := flag.String("source", "", "Source fixel dataset directory")
	dataName := flag.String("data", "", "Per-fixel data file within the source dataset to project")
	mappingDir := flag.String("mapping", "", "Correspondence directory produced by fixelmatch")
	targetDir := flag.String("target", "", "Target fixel dataset directory receiving the projection")
	outputName := flag.String("output", "", "Name of the output data file written into the target dataset")
	metricName := flag.String("metric", "", "Aggregation metric: sum, mean, count or angle")
	weightsName := flag.String("weights", "", "Optional per-source-fixel weights data file within the source dataset")
	fillValue := flag.Float64("fill", 0, "Value for target fixels with no corresponding source fixel")
	nanManyToOne := flag.Bool("nan-many2one", false, "Write NaN where multiple source fixels map to one target fixel")
	nanOneToMany := flag.Bool("nan-one2many", false, "Write NaN where one source fixel maps to multiple target fixels")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: all available)")
	configPath := flag.String("config", "fixelmatch.yaml", "Configuration file path")
	flag.Parse()

	// Validate inputs
	if *sourceDir == "" || *dataName == "" || *mappingDir == "" || *targetDir == "" || *outputName == "" {
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
		case "metric":
			cfg.Projection.Metric = *metricName
		case "fill":
			cfg.Projection.FillValue = *fillValue
		case "nan-many2one":
			cfg.Projection.NaNManyToOne = *nanManyToOne
		case "nan-one2many":
			cfg.Projection.NaNOneToMany = *nanOneToMany
		case "cores":
			cfg.Processing.NumCores = *numCores
		}
	})

	metric, err := correspondence.ParseMetric(cfg.Projection.Metric)
	if err != nil {
		log.Fatalf("Invalid projection configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("FIXEL DATA PROJECTION")
	fmt.Printf("Metric: %s\n", metric)
	fmt.Println("================================")

	mapping, err := correspondence.LoadMapping(*mappingDir)
	if err != nil {
		log.Fatalf("Failed to load correspondence: %v", err)
	}

	source, err := fixel.Open(*sourceDir)
	if err != nil {
		log.Fatalf("Failed to open source dataset: %v", err)
	}
	if uint32(source.NumFixels()) != mapping.SourceFixels() {
		log.Fatalf("Source dataset holds %d fixels but correspondence declares %d",
			source.NumFixels(), mapping.SourceFixels())
	}
	values, err := source.LoadData(*dataName)
	if err != nil {
		log.Fatalf("Failed to load source data: %v", err)
	}

	var explicitWeights []float64
	if *weightsName != "" {
		explicitWeights, err = source.LoadData(*weightsName)
		if err != nil {
			log.Fatalf("Failed to load weights data: %v", err)
		}
	}

	target, err := fixel.Open(*targetDir)
	if err != nil {
		log.Fatalf("Failed to open target dataset: %v", err)
	}
	if target.NumFixels() != mapping.Len() {
		log.Fatalf("Target dataset holds %d fixels but correspondence declares %d",
			target.NumFixels(), mapping.Len())
	}

	fill := correspondence.FillSettings{
		Value:        cfg.Projection.FillValue,
		NaNManyToOne: cfg.Projection.NaNManyToOne,
		NaNOneToMany: cfg.Projection.NaNOneToMany,
	}
	projector, err := correspondence.NewProjector(mapping, metric, fill,
		values, explicitWeights, source.Directions(), target.Directions())
	if err != nil {
		log.Fatalf("Failed to set up projection: %v", err)
	}

	startTime := time.Now()
	output, err := projector.Run(cfg.Processing.NumCores)
	if err != nil {
		log.Fatalf("Projection failed: %v", err)
	}
	fmt.Printf("Projected %d target fixels in %.2f seconds using %d cores\n",
		len(output), time.Since(startTime).Seconds(), cfg.Processing.NumCores)

	if err := target.SaveData(*outputName, output); err != nil {
		log.Fatalf("Failed to save projected data: %v", err)
	}
	fmt.Printf("Projected data saved to: %s\n", *outputName)
}
