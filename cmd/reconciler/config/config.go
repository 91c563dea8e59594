// Package config assembles the reconciler configuration from defaults, an
// optional config file, RECONCILER_* environment variables and flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"credit-reconciliation-service/internal/extractor"
	"credit-reconciliation-service/internal/parsers"
	"credit-reconciliation-service/internal/reconciler"
	"credit-reconciliation-service/internal/reporter"
	"credit-reconciliation-service/internal/store"
	"credit-reconciliation-service/pkg/logger"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// RECONCILER_LEDGER_WORKBOOK.
const EnvPrefix = "RECONCILER"

// Config is the full reconciler configuration.
type Config struct {
	Bank      extractor.BankProfile   `mapstructure:"bank"`
	Statement parsers.StatementConfig `mapstructure:"statement"`
	Registry  RegistrySection         `mapstructure:"registry"`
	Ledger    store.LedgerConfig      `mapstructure:"ledger"`
	Pending   PendingSection          `mapstructure:"pending"`
	Engine    reconciler.Config       `mapstructure:"engine"`
	Log       logger.Config           `mapstructure:"log"`
	Output    reporter.ReportConfig   `mapstructure:"output"`
}

// RegistrySection locates the customer registries. Path is either a workbook
// holding both registry sheets or a CSV snapshot of the primary registry, in
// which case SecondaryPath may name the secondary CSV.
type RegistrySection struct {
	Path          string `mapstructure:"path"`
	SecondaryPath string `mapstructure:"secondary_path"`

	parsers.RegistryConfig `mapstructure:",squash"`
}

// IsCSV reports whether the registry is given as CSV snapshots.
func (r RegistrySection) IsCSV() bool {
	return strings.EqualFold(filepath.Ext(r.Path), ".csv")
}

// PendingSection locates the pending review database.
type PendingSection struct {
	Path string `mapstructure:"path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Bank:      extractor.DefaultProfile(),
		Statement: *parsers.DefaultStatementConfig(),
		Registry: RegistrySection{
			Path:           "registry.xlsx",
			RegistryConfig: *parsers.DefaultRegistryConfig(),
		},
		Ledger:  *store.DefaultLedgerConfig(),
		Pending: PendingSection{Path: "pending.db"},
		Engine:  *reconciler.DefaultConfig(),
		Log:     *logger.DefaultConfig(),
		Output:  *reporter.DefaultReportConfig(),
	}
}

// SetDefaults registers every configuration key on v so that environment
// variables and config files can override any of them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("bank.channel", d.Bank.Channel)
	v.SetDefault("bank.account_markers", d.Bank.AccountMarkers)
	v.SetDefault("bank.description_marker", d.Bank.DescriptionMarker)
	v.SetDefault("bank.section_markers", d.Bank.SectionMarkers)
	v.SetDefault("bank.noise_patterns", d.Bank.NoisePatterns)
	v.SetDefault("bank.plate_prefix", d.Bank.PlatePrefix)
	v.SetDefault("bank.blocklist", d.Bank.Blocklist)

	v.SetDefault("statement.sheet", d.Statement.Sheet)
	v.SetDefault("statement.header_scan_rows", d.Statement.HeaderScanRows)
	v.SetDefault("statement.date_column", d.Statement.DateColumn)
	v.SetDefault("statement.narration_column", d.Statement.NarrationColumn)
	v.SetDefault("statement.credit_column", d.Statement.CreditColumn)
	v.SetDefault("statement.debit_column", d.Statement.DebitColumn)
	v.SetDefault("statement.delimiter", d.Statement.Delimiter)

	v.SetDefault("registry.path", d.Registry.Path)
	v.SetDefault("registry.secondary_path", d.Registry.SecondaryPath)
	v.SetDefault("registry.primary_sheet", d.Registry.PrimarySheet)
	v.SetDefault("registry.secondary_sheet", d.Registry.SecondarySheet)
	v.SetDefault("registry.plate_column", d.Registry.PlateColumn)
	v.SetDefault("registry.name_column", d.Registry.NameColumn)
	v.SetDefault("registry.phone_column", d.Registry.PhoneColumn)
	v.SetDefault("registry.identity_column", d.Registry.IdentityColumn)

	v.SetDefault("ledger.workbook", d.Ledger.Path)
	v.SetDefault("ledger.primary_sheet", d.Ledger.PrimarySheet)
	v.SetDefault("ledger.secondary_sheet", d.Ledger.SecondarySheet)
	v.SetDefault("ledger.unmatched_sheet", d.Ledger.UnmatchedSheet)
	v.SetDefault("ledger.id_column", d.Ledger.IDColumn)
	v.SetDefault("ledger.narration_column", d.Ledger.NarrationColumn)
	v.SetDefault("ledger.ref_column", d.Ledger.RefColumn)

	v.SetDefault("pending.path", d.Pending.Path)

	v.SetDefault("engine.progress_interval", d.Engine.ProgressInterval)

	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.format", string(d.Log.Format))
	v.SetDefault("log.output", string(d.Log.Output))
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("output.format", string(d.Output.Format))
	v.SetDefault("output.include_entries", d.Output.IncludeEntries)
	v.SetDefault("output.include_review", d.Output.IncludeReview)
	v.SetDefault("output.include_duplicates", d.Output.IncludeDuplicates)
	v.SetDefault("output.include_outcomes", d.Output.IncludeOutcomes)
	v.SetDefault("output.use_colors", d.Output.UseColors)
	v.SetDefault("output.table_max_width", d.Output.TableMaxWidth)
	v.SetDefault("output.csv_headers", d.Output.CSVHeaders)
}

// BindEnv enables RECONCILER_SECTION_KEY overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes v onto the defaults and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Bank.Validate(); err != nil {
		return fmt.Errorf("invalid bank profile: %w", err)
	}
	if err := c.Statement.Validate(); err != nil {
		return fmt.Errorf("invalid statement config: %w", err)
	}
	if err := c.Registry.RegistryConfig.Validate(); err != nil {
		return fmt.Errorf("invalid registry config: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("invalid ledger config: %w", err)
	}
	if strings.TrimSpace(c.Pending.Path) == "" {
		return fmt.Errorf("invalid pending config: path cannot be empty")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("invalid output config: %w", err)
	}
	return nil
}

// CreateReportConfig returns the output section adjusted for format.
func (c *Config) CreateReportConfig(format string) *reporter.ReportConfig {
	config := c.Output
	if format != "" {
		config.Format = reporter.OutputFormat(format)
	}

	switch config.Format {
	case reporter.FormatJSON:
		config.UseColors = false
	case reporter.FormatCSV:
		config.UseColors = false
		config.IncludeDuplicates = false
		config.IncludeOutcomes = false
		if config.CSVDelimiter == 0 {
			config.CSVDelimiter = ','
		}
	}

	return &config
}
