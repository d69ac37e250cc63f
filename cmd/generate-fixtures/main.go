// Command generate-fixtures writes a synthetic ground-truth record and a
// sample forecast for running the leaderboard locally.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/testutils"
)

func main() {
	defaults := testutils.DefaultRecordOptions()
	var (
		outputDir = flag.String("output", "data", "Directory for the generated files")
		days      = flag.Int("days", defaults.Days, "Number of days in the ground-truth record")
		firstDay  = flag.Int("first-day", defaults.FirstDay, "Day number of the first row")
		seed      = flag.Uint64("seed", defaults.Seed, "Random seed")
		bias      = flag.Float64("bias", 0.8, "Constant error added to the sample forecast")
		noise     = flag.Float64("noise", 1.2, "Standard deviation of the sample forecast error")
	)
	flag.Parse()

	opts := defaults
	opts.Days = *days
	opts.FirstDay = *firstDay
	opts.Seed = *seed
	record := testutils.GenerateRecord(opts)

	if err := os.MkdirAll(*outputDir, 0o750); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	truthPath := filepath.Join(*outputDir, "ground_truth.csv")
	if err := writeFile(truthPath, func(f *os.File) error {
		return testutils.WriteRecordCSV(f, record, "day", "temperature")
	}); err != nil {
		log.Fatalf("Failed to write ground truth: %v", err)
	}

	series, err := domain.SelectWindow(record, domain.Anchor{
		Policy:   domain.AnchorFixedStart,
		StartDay: domain.DefaultStartDay,
		Window:   domain.Horizon60Days,
	})
	if err != nil {
		log.Fatalf("Record does not cover the default evaluation window: %v", err)
	}

	predsPath := filepath.Join(*outputDir, "sample_predictions.csv")
	preds := testutils.Forecast(series, *bias, *noise, *seed+1)
	if err := writeFile(predsPath, func(f *os.File) error {
		return testutils.WritePredictionsCSV(f, preds)
	}); err != nil {
		log.Fatalf("Failed to write sample predictions: %v", err)
	}

	score, err := domain.Score(preds, series)
	if err != nil {
		log.Fatalf("Failed to score sample predictions: %v", err)
	}

	fmt.Printf("Generated fixtures:\n")
	fmt.Printf("- Ground truth: %s (%d rows, days %d-%d)\n", truthPath, len(record), opts.FirstDay, opts.FirstDay+opts.Days-1)
	fmt.Printf("- Sample predictions: %s (%d values)\n", predsPath, len(preds))
	fmt.Printf("- Expected RMSE: 10d=%.3f 30d=%.3f 60d=%.3f\n", score.RMSE10, score.RMSE30, score.RMSE60)
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
