package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"credit-reconciliation-service/internal/fixtures"
)

// scenario is a named outcome mix.
type scenario struct {
	Name        string
	Description string
	Mix         fixtures.Mix
}

var scenarios = []scenario{
	{
		Name:        "default",
		Description: "Every outcome represented, a few duplicates and debits",
		Mix:         fixtures.DefaultMix(),
	},
	{
		Name:        "review",
		Description: "Mostly rearranged plates, for exercising the review workflow",
		Mix:         fixtures.Mix{Phone: 5, Plate: 5, Reversed: 25, Unmatched: 3, Duplicates: 2},
	},
	{
		Name:        "duplicates",
		Description: "A statement exported twice over the same period",
		Mix:         fixtures.Mix{Phone: 30, Plate: 30, Unmatched: 10, Duplicates: 60, Debits: 20},
	},
	{
		Name:        "performance",
		Description: "Large statement for timing runs",
		Mix:         fixtures.Mix{Phone: 20000, Plate: 15000, Reversed: 1000, Unmatched: 8000, Duplicates: 2000, Debits: 5000},
	},
}

func main() {
	var (
		name      = flag.String("scenario", "", "Scenario to generate, or 'all'")
		list      = flag.Bool("list", false, "List available scenarios")
		outputDir = flag.String("output-dir", "../generated", "Output directory for generated files")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	if *list || *name == "" {
		fmt.Println("Test Data Generator")
		fmt.Println("===================")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  go run generate.go -scenario=<name> [-seed=N] [-output-dir=DIR]")
		fmt.Println()
		fmt.Println("Available scenarios:")
		for _, s := range scenarios {
			fmt.Printf("  %-12s %s\n", s.Name, s.Description)
		}
		fmt.Println()
		fmt.Println("Each scenario writes <name>_statement.csv, <name>_primary.csv and")
		fmt.Println("<name>_secondary.csv, ready for:")
		fmt.Println("  reconciler reconcile -s <name>_statement.csv -r <name>_primary.csv --registry-secondary <name>_secondary.csv")
		return
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	found := false
	for _, s := range scenarios {
		if *name != "all" && s.Name != *name {
			continue
		}
		found = true
		generate(s, *outputDir, *seed)
	}
	if !found {
		log.Fatalf("Unknown scenario: %s", *name)
	}

	fmt.Printf("Seed used: %d\n", *seed)
}

func generate(s scenario, outputDir string, seed int64) {
	start := time.Now()
	ds := fixtures.NewGenerator(seed).Generate(s.Mix)

	statement := filepath.Join(outputDir, s.Name+"_statement.csv")
	primary := filepath.Join(outputDir, s.Name+"_primary.csv")
	secondary := filepath.Join(outputDir, s.Name+"_secondary.csv")
	if err := ds.WriteFiles(statement, primary, secondary); err != nil {
		log.Fatalf("Failed to generate %s: %v", s.Name, err)
	}

	m := s.Mix
	fmt.Printf("%s: %d lines in %s (%v)\n", s.Name, len(ds.Statement), statement, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  expected: primary=%d secondary=%d review=%d unmatched=%d duplicates=%d, %d debits skipped\n",
		m.Phone, m.Plate, m.Reversed, m.Unmatched, m.Duplicates, m.Debits)
}
