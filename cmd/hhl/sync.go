package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/sync"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:       "sync <modules|courses|pathways|all>",
	Short:     "Validate content and upsert it into the HubDB tables",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"modules", "courses", "pathways", "all"},
	RunE:      runSync,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every course and pathway reference resolves to local content",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Report published rows that reference missing content, and unreferenced modules",
	Args:  cobra.NoArgs,
	RunE:  runOrphans,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Print row payloads without writing to HubDB")
}

func loadCatalog() (*content.Catalog, error) {
	cat, err := content.Load(cfg.ContentDir, logger)
	if err != nil {
		return nil, fmt.Errorf("load content %s: %w", cfg.ContentDir, err)
	}
	return cat, nil
}

func tables() sync.Tables {
	return sync.Tables{
		sync.Modules:  cfg.ModulesTableID,
		sync.Courses:  cfg.CoursesTableID,
		sync.Pathways: cfg.PathwaysTableID,
	}
}

// syncOptions builds the options for one kind. The archive dir holds module
// directories, so only module runs see archived slugs.
func syncOptions(kind sync.Kind, dryRun bool) sync.Options {
	opts := sync.Options{
		DryRun:          dryRun,
		DeleteMissing:   cfg.DeleteMissing,
		ArchiveStrategy: cfg.ArchiveStrategy,
		StripLeadingH1:  cfg.StripLeadingH1,
		RowDelay:        cfg.RowDelay,
	}
	if kind == sync.Modules {
		opts.ArchivedSlugs = content.ArchivedSlugs(cfg.ArchiveDir)
	}
	return opts
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	hub, err := hubspotClient()
	if err != nil {
		return err
	}
	s := sync.New(hub, tables(), cat, logger)
	s.Out = cmd.OutOrStdout()

	var sums []sync.Summary
	if args[0] == "all" {
		sums, err = s.RunAll(ctx, map[sync.Kind]sync.Options{
			sync.Modules:  syncOptions(sync.Modules, syncDryRun),
			sync.Courses:  syncOptions(sync.Courses, syncDryRun),
			sync.Pathways: syncOptions(sync.Pathways, syncDryRun),
		})
	} else {
		kind, perr := sync.ParseKind(args[0])
		if perr != nil {
			return perr
		}
		var sum sync.Summary
		sum, err = s.Run(ctx, kind, syncOptions(kind, syncDryRun))
		sums = append(sums, sum)
	}

	var refs content.ReferenceErrors
	if errors.As(err, &refs) {
		fmt.Fprint(cmd.ErrOrStderr(), content.FormatReferenceErrors(refs))
		return errFailed
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, sum := range sums {
		fmt.Fprintln(cmd.OutOrStdout(), sum.String())
		failed += sum.Failed
	}
	if failed > 0 {
		logger.Error("sync finished with failed rows", zap.Int("failed", failed))
		return errFailed
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	for _, p := range cat.Problems {
		logger.Warn("content file skipped", zap.Error(p))
	}
	if errs := cat.Validate(); len(errs) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), content.FormatReferenceErrors(errs))
		return errFailed
	}
	fmt.Fprintf(cmd.OutOrStdout(), "All references valid: %d modules, %d courses, %d pathways\n",
		len(cat.Modules), len(cat.Courses), len(cat.Pathways))
	return nil
}

func runOrphans(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	hub, err := hubspotClient()
	if err != nil {
		return err
	}
	rep, err := sync.New(hub, tables(), cat, logger).DetectOrphans(ctx)
	if err != nil {
		return err
	}

	out := struct {
		*sync.OrphanReport
		UnreferencedModules []string `json:"unreferencedModules"`
	}{rep, cat.UnreferencedModules()}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if rep.Summary.TotalOrphans > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), content.FormatReferenceErrors(rep.Errors))
		return errFailed
	}
	return nil
}
