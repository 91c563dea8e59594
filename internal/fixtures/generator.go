// Package fixtures generates synthetic CRDB statements and registry
// snapshots with a known outcome mix. Tests use it to drive the whole
// pipeline; testdata/generators writes the same datasets to disk.
package fixtures

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"credit-reconciliation-service/internal/extractor"
	"credit-reconciliation-service/internal/models"
)

// StatementTitle is written above the header row, as in real exports.
const StatementTitle = "CRDB BANK PLC"

// Mix is the number of rows of each kind to generate.
type Mix struct {
	// Phone rows carry a registered primary customer's phone.
	Phone int
	// Plate rows carry a registered secondary customer's plate.
	Plate int
	// Reversed rows carry a rearranged plate that needs review.
	Reversed int
	// Unmatched rows carry a phone nobody registered.
	Unmatched int
	// Duplicates repeat an earlier credit narration.
	Duplicates int
	// Debits are withdrawals the statement parser skips.
	Debits int
}

// DefaultMix returns a small mix with every kind represented.
func DefaultMix() Mix {
	return Mix{Phone: 20, Plate: 15, Reversed: 5, Unmatched: 8, Duplicates: 4, Debits: 6}
}

// Total returns the number of credit rows the mix produces.
func (m Mix) Total() int {
	return m.Phone + m.Plate + m.Reversed + m.Unmatched + m.Duplicates
}

// StatementLine is one row of a generated statement.
type StatementLine struct {
	PostingDate string `csv:"Posting Date"`
	Details     string `csv:"Details"`
	ValueDate   string `csv:"Value Date"`
	Debit       string `csv:"Debit"`
	Credit      string `csv:"Credit"`
}

// RegistryLine is one row of a registry CSV snapshot.
type RegistryLine struct {
	Plate    string `csv:"plate"`
	Name     string `csv:"name"`
	Phone    string `csv:"phone"`
	Identity string `csv:"identity"`
}

// Dataset is a generated statement with the registries it was built against.
type Dataset struct {
	Seed      int64
	Mix       Mix
	Statement []StatementLine
	Primary   []RegistryLine
	Secondary []RegistryLine
}

// Generator builds datasets. The same seed always yields the same dataset.
type Generator struct {
	Seed      int64
	StartDate time.Time
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	rng     *rand.Rand
	blocked map[string]bool
	used    map[string]bool
}

var customerNames = []string{
	"Asha", "Baraka", "Neema", "Juma", "Rehema", "Hamisi", "Zawadi", "Said",
	"Upendo", "Khamis", "Mwajuma", "Daudi", "Faraja", "Salma", "Omari", "Imani",
}

// NewGenerator creates a generator with March 2024 dates and amounts between
// 500 and 50,000.
func NewGenerator(seed int64) *Generator {
	blocked := make(map[string]bool)
	for _, word := range extractor.DefaultProfile().Blocklist {
		blocked[word] = true
	}
	return &Generator{
		Seed:      seed,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MinAmount: decimal.NewFromInt(500),
		MaxAmount: decimal.NewFromInt(50000),
		rng:       rand.New(rand.NewSource(seed)),
		blocked:   blocked,
		used:      make(map[string]bool),
	}
}

// Generate builds a dataset for mix. Rows are shuffled so that outcomes are
// interleaved; duplicates always follow the row they repeat.
func (g *Generator) Generate(mix Mix) *Dataset {
	ds := &Dataset{Seed: g.Seed, Mix: mix}
	var credits []StatementLine

	for i := 0; i < mix.Phone; i++ {
		phone := g.phone()
		name := g.name()
		ds.Primary = append(ds.Primary, RegistryLine{Name: name, Phone: phone})

		shown := phone
		if g.rng.Intn(2) == 0 {
			shown = models.NationalPhone(phone)
		}
		credits = append(credits, g.credit(fmt.Sprintf("PAYMENT FROM %s REF:TX%07d", shown, g.rng.Intn(10000000))))
	}

	for i := 0; i < mix.Plate; i++ {
		digits, letters := g.plate()
		ds.Secondary = append(ds.Secondary, RegistryLine{
			Plate:    "MC" + digits + letters,
			Name:     g.name(),
			Identity: fmt.Sprintf("ID-%05d", g.rng.Intn(100000)),
		})
		credits = append(credits, g.credit(fmt.Sprintf("MC %s %s TOPUP %s", digits, letters, strings.ToUpper(g.name()))))
	}

	for i := 0; i < mix.Reversed; i++ {
		digits, letters := g.plate()
		ds.Secondary = append(ds.Secondary, RegistryLine{
			Plate:    "MC " + digits + " " + letters,
			Name:     g.name(),
			Identity: fmt.Sprintf("ID-%05d", g.rng.Intn(100000)),
		})
		credits = append(credits, g.credit(fmt.Sprintf("FARE %s%sMC", letters, digits)))
	}

	for i := 0; i < mix.Unmatched; i++ {
		credits = append(credits, g.credit(fmt.Sprintf("PAYMENT FROM %s", g.phone())))
	}

	g.rng.Shuffle(len(credits), func(i, j int) { credits[i], credits[j] = credits[j], credits[i] })

	for i := 0; i < mix.Duplicates && len(credits) > 0; i++ {
		at := g.rng.Intn(len(credits))
		dup := credits[at]
		credits = append(credits[:at+1], append([]StatementLine{dup}, credits[at+1:]...)...)
	}

	for i := 0; i < mix.Debits; i++ {
		debit := g.line("ATM WITHDRAWAL " + strings.ToUpper(g.name()))
		debit.Debit = g.amount().StringFixed(2)
		at := g.rng.Intn(len(credits) + 1)
		credits = append(credits[:at], append([]StatementLine{debit}, credits[at:]...)...)
	}

	for i := range credits {
		date := g.StartDate.AddDate(0, 0, i*28/max(len(credits), 1)).Format("02-01-2006")
		credits[i].PostingDate = date
		credits[i].ValueDate = date
	}

	ds.Statement = credits
	return ds
}

func (g *Generator) line(details string) StatementLine {
	return StatementLine{Details: details}
}

func (g *Generator) credit(details string) StatementLine {
	line := g.line(details)
	line.Credit = g.amount().StringFixed(2)
	return line
}

func (g *Generator) amount() decimal.Decimal {
	span := g.MaxAmount.Sub(g.MinAmount).IntPart()
	if span <= 0 {
		return g.MinAmount
	}
	// whole hundreds, the way fares and top-ups are paid
	return g.MinAmount.Add(decimal.NewFromInt(g.rng.Int63n(span/100+1) * 100))
}

func (g *Generator) name() string {
	return customerNames[g.rng.Intn(len(customerNames))]
}

// phone returns an unused local phone number.
func (g *Generator) phone() string {
	for {
		phone := fmt.Sprintf("0%d%08d", 6+g.rng.Intn(2), g.rng.Intn(100000000))
		if !g.used[phone] {
			g.used[phone] = true
			return phone
		}
	}
}

// plate returns unused plate parts. Letter groups never contain the plate
// prefix or a blocklisted word.
func (g *Generator) plate() (digits, letters string) {
	for {
		digits = fmt.Sprintf("%03d", g.rng.Intn(1000))
		b := make([]byte, 3)
		for i := range b {
			b[i] = byte('A' + g.rng.Intn(26))
		}
		letters = string(b)
		if g.blocked[letters] || strings.Contains(letters, "MC") || g.used[digits+letters] {
			continue
		}
		g.used[digits+letters] = true
		return digits, letters
	}
}

// Rows returns the credit rows the statement parser would produce.
func (d *Dataset) Rows() []models.TransactionRow {
	rows := make([]models.TransactionRow, 0, d.Mix.Total())
	for _, line := range d.Statement {
		if line.Credit == "" {
			continue
		}
		amount, err := models.ParseAmount(line.Credit)
		if err != nil {
			continue
		}
		rows = append(rows, models.NewTransactionRow(line.PostingDate, line.Details, amount))
	}
	return rows
}

// Records returns the registries as customer records.
func (d *Dataset) Records() (primary, secondary []models.CustomerRecord) {
	return records(d.Primary), records(d.Secondary)
}

func records(lines []RegistryLine) []models.CustomerRecord {
	var out []models.CustomerRecord
	for _, l := range lines {
		if plate := models.NormalizePlate(l.Plate); plate != "" {
			out = append(out, models.CustomerRecord{Identifier: plate, Kind: models.KindPlate, Name: l.Name, Identity: l.Identity})
		}
		if phone := models.NormalizePhone(l.Phone); phone != "" {
			out = append(out, models.CustomerRecord{Identifier: phone, Kind: models.KindPhone, Name: l.Name, Identity: l.Identity})
		}
	}
	return out
}

// WriteStatement writes the statement as a CSV export with a title line.
func (d *Dataset) WriteStatement(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s\n", StatementTitle); err != nil {
		return err
	}
	return gocsv.Marshal(d.Statement, w)
}

// WriteFiles writes the statement and both registries as CSV files.
func (d *Dataset) WriteFiles(statementPath, primaryPath, secondaryPath string) error {
	if err := writeFile(statementPath, d.WriteStatement); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	for path, lines := range map[string][]RegistryLine{primaryPath: d.Primary, secondaryPath: d.Secondary} {
		if path == "" {
			continue
		}
		if err := writeFile(path, func(w io.Writer) error { return gocsv.Marshal(lines, w) }); err != nil {
			return fmt.Errorf("write registry %s: %w", path, err)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
