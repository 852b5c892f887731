package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type flagName string

const (
	flagWriters    flagName = "writers"
	flagReaders    flagName = "readers"
	flagExtractors flagName = "extractors"
	flagKeys       flagName = "keys"
	flagOps        flagName = "ops"
	flagLoadFactor flagName = "load-factor"
	flagItemCount  flagName = "item-count"
	flagStatic     flagName = "static"
	flagUUID       flagName = "uuid"
	flagSeed       flagName = "seed"
	flagVerbose    flagName = "verbose"
)

func (f flagName) ensureAdded(cmd *cobra.Command) {
	if cmd.Flags().Lookup(string(f)) == nil {
		panic(fmt.Sprintf("command %q uses flag %q without adding it", cmd.Name(), f))
	}
}

func (f flagName) Int(cmd *cobra.Command) int {
	f.ensureAdded(cmd)
	v, _ := cmd.Flags().GetInt(string(f))
	return v
}

func (f flagName) Uint(cmd *cobra.Command) uint {
	f.ensureAdded(cmd)
	v, _ := cmd.Flags().GetUint(string(f))
	return v
}

func (f flagName) Uint64(cmd *cobra.Command) uint64 {
	f.ensureAdded(cmd)
	v, _ := cmd.Flags().GetUint64(string(f))
	return v
}

func (f flagName) Bool(cmd *cobra.Command) bool {
	f.ensureAdded(cmd)
	v, _ := cmd.Flags().GetBool(string(f))
	return v
}

func addWorkloadFlags(f *pflag.FlagSet) {
	f.IntP(string(flagWriters), "w", 4, "goroutines inserting and erasing their own keys")
	f.IntP(string(flagReaders), "r", 4, "goroutines looking up random keys")
	f.IntP(string(flagExtractors), "x", 2, "goroutines extracting and reinserting their own keys")
	f.IntP(string(flagKeys), "k", 1024, "keys owned by each writer and extractor")
	f.IntP(string(flagOps), "n", 1<<16, "operations per writer and extractor")
	f.Uint(string(flagLoadFactor), 1, "average elements per bucket before the table doubles")
	f.Uint(string(flagItemCount), 0, "expected number of elements, sizes the initial table")
	f.Bool(string(flagStatic), false, "use a fixed size bucket table")
	f.Bool(string(flagUUID), false, "use random UUIDs instead of sequential keys")
	f.Uint64(string(flagSeed), 0, "random seed, 0 picks one")
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splitstress",
		Short: "stress test a lock-free split-list set",
		Long: `splitstress runs writers, readers and extractors against one set at the same time.

Writers insert and erase keys they own and mirror every operation in a private
sequential set. Readers look up keys inside read sections and check a checksum
stored with every element, so reading a reclaimed element is detected.
Extractors take their own keys out, check them, release and reinsert them.
At the end the set must match the writers' sequential sets exactly.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStress,
	}
	addWorkloadFlags(cmd.Flags())
	cmd.Flags().BoolP(string(flagVerbose), "v", false, "log set internals at debug level")
	return cmd
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l.Sugar(), nil
}

// Main runs splitstress and returns the code for passing to os.Exit.
func Main() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
