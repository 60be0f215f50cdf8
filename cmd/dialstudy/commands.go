package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dialstudy/dialstudy/pkg/app"
	"github.com/dialstudy/dialstudy/pkg/checkpoint"
	"github.com/dialstudy/dialstudy/pkg/config"
	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/export"
	"github.com/dialstudy/dialstudy/pkg/lifecycle"
	"github.com/dialstudy/dialstudy/pkg/sequencer"
	"github.com/dialstudy/dialstudy/pkg/storage"
	"github.com/dialstudy/dialstudy/pkg/tui"
	"github.com/dialstudy/dialstudy/pkg/validation"
)

// Additional CLI flags
var (
	// Status flags
	statusParticipant uint32
	cleanupAge        time.Duration

	// Export flags
	exportInput        string
	reportDir          string
	exportParticipants []uint
)

var planCmd = &cobra.Command{
	Use:   "plan <participant-id>",
	Short: "Print the trial plan a participant would get",
	Long: `Draw the trial blocks for a participant without running a session.

The plan matches the first session of a run started with the same seed.

Examples:
  dialstudy plan 12 --seed 42`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var validateCmd = &cobra.Command{
	Use:   "validate [experiment-file]",
	Short: "Check an experiment document",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List interrupted sessions",
	Long: `List session checkpoints that never reached the debrief.

Examples:
  dialstudy status
  dialstudy status --cleanup 720h
  dialstudy status --participant 12`,
	RunE: runStatus,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the xlsx reports from recorded datasets",
	Long: `Read {input}/{participant}/*.csv and write one workbook per participant,
AllDecisions.xlsx and DDM.xlsx.

The input may be a directory or an s3://bucket/prefix location.

Examples:
  dialstudy export --reports reports
  dialstudy export --input s3://lab-data/dialstudy --participant 3 --participant 4`,
	RunE: runExport,
}

func init() {
	planCmd.Flags().Int64Var(&seed, "seed", 0, "Trial randomization seed (default: session.seed)")

	statusCmd.Flags().Uint32Var(&statusParticipant, "participant", 0, "Show the latest session of a participant (redis backend)")
	statusCmd.Flags().DurationVar(&cleanupAge, "cleanup", 0, "Remove completed checkpoints older than this (file backend)")

	exportCmd.Flags().StringVarP(&exportInput, "input", "i", "", "Dataset location (default: output.dir)")
	exportCmd.Flags().StringVar(&reportDir, "reports", "reports", "Directory for the workbooks")
	exportCmd.Flags().UintSliceVar(&exportParticipants, "participant", nil, "Export only these participants")
}

func loadDocument(cfg *config.Config, args []string) (*experiment.Document, error) {
	path := cfg.Session.ExperimentFile
	if len(args) > 0 {
		path = args[0]
	}
	return experiment.Load(path)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	doc, err := loadDocument(cfg, nil)
	if err != nil {
		return err
	}

	id, p, err := doc.Lookup(args[0])
	if err != nil {
		return err
	}

	s := cfg.Session.Seed
	if s == 0 {
		s = time.Now().UnixNano()
		fmt.Fprintf(os.Stderr, "no seed given, using %d\n", s)
	}

	trials := sequencer.PlanTrials(doc.Videos.IDs, doc.Videos.Num, rand.New(rand.NewSource(s)))
	rows := make([]tui.PlanRow, len(trials))
	for i, t := range trials {
		rows[i] = tui.PlanRow{
			Block:   t.Block,
			VideoID: t.VideoID,
			Bucket:  sequencer.BucketName(t.Bucket),
			Path:    t.Path,
		}
	}

	title := fmt.Sprintf("Participant %d  %s  counterbalance=%t  seed=%d", id, p.Condition, p.Counterbalance, s)
	tui.PrintPlan(os.Stdout, title, rows)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	doc, err := loadDocument(cfg, args)
	if err != nil {
		return err
	}

	conditions := make(map[string]int)
	for _, p := range doc.Participants {
		conditions[p.Condition]++
	}
	names := make([]string, 0, len(conditions))
	for c := range conditions {
		names = append(names, c)
	}
	sort.Strings(names)

	items := []tui.KeyValue{
		{Key: "File", Value: doc.Path()},
		{Key: "Participants", Value: strconv.Itoa(len(doc.Participants))},
		{Key: "Videos", Value: fmt.Sprintf("%d of %d per session", doc.Videos.Num, len(doc.Videos.IDs))},
		{Key: "Consent pages", Value: strconv.Itoa(len(doc.Consent))},
		{Key: "Scaling", Value: strconv.FormatFloat(doc.Scaling(), 'g', -1, 64)},
	}
	for _, c := range names {
		items = append(items, tui.KeyValue{Key: "Condition " + c, Value: strconv.Itoa(conditions[c])})
	}

	r := validation.Check(doc, app.PreflightOptions(cfg))
	for _, w := range r.Warnings {
		items = append(items, tui.KeyValue{Key: "Warning", Value: validation.TruncateString(w, 100)})
	}
	for _, err := range r.Errors {
		items = append(items, tui.KeyValue{Key: "Error", Value: err.Error()})
	}

	title := "EXPERIMENT OK"
	if !r.Valid {
		title = "EXPERIMENT NOT READY"
	}
	tui.PrintSummary(os.Stdout, title, items)
	return r.Err()
}


func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := lifecycle.SignalContext(context.Background())
	defer stop()

	var backend checkpoint.Backend
	switch cfg.Checkpoint.Backend {
	case "none":
		return fmt.Errorf("checkpoints are disabled (checkpoint.backend: none)")
	case "redis":
		rdb, err := checkpoint.NewRedisBackend(app.RedisConfig(cfg))
		if err != nil {
			return err
		}
		defer rdb.Close()

		if cmd.Flags().Changed("participant") {
			cp, err := rdb.FindByParticipant(ctx, statusParticipant)
			if err != nil {
				return fmt.Errorf("participant %d: %w", statusParticipant, err)
			}
			tui.PrintSessions(os.Stdout, rdb.Name(), []tui.SessionRow{sessionRow(cp)})
			return nil
		}
		backend = rdb
	default:
		fb, err := checkpoint.NewFileBackend(cfg.Checkpoint.Dir)
		if err != nil {
			return err
		}
		if cleanupAge > 0 {
			n, err := fb.Cleanup(cleanupAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "removed %d completed checkpoints\n", n)
		}
		backend = fb
	}

	cps, err := backend.ListIncomplete(ctx)
	if err != nil {
		return err
	}
	rows := make([]tui.SessionRow, len(cps))
	for i, cp := range cps {
		rows[i] = sessionRow(cp)
	}
	tui.PrintSessions(os.Stdout, backend.Name(), rows)
	return nil
}

func sessionRow(cp *checkpoint.Checkpoint) tui.SessionRow {
	return tui.SessionRow{
		ID:          cp.ID,
		Participant: cp.Participant,
		Condition:   cp.Condition,
		Phase:       cp.Phase,
		Screen:      cp.Screen,
		Host:        cp.Host,
		Age:         time.Since(cp.UpdatedAt),
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := lifecycle.SignalContext(context.Background())
	defer stop()

	location := exportInput
	if location == "" {
		location = cfg.Output.Dir
	}
	store, err := storage.Open(ctx, location)
	if err != nil {
		return err
	}

	ids := make([]uint32, len(exportParticipants))
	for i, id := range exportParticipants {
		ids[i] = uint32(id)
	}
	if len(ids) == 0 {
		if ids, err = export.ListParticipants(ctx, store); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no participant datasets under %s", location)
	}

	bar := tui.ShowProgress(os.Stderr, int64(len(ids)), "Exporting")
	res, err := export.Run(ctx, store, export.Options{
		OutputDir:    reportDir,
		Participants: ids,
		Progress:     bar,
		Logger:       logger,
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	tui.PrintExportReport(os.Stdout, &tui.ExportReport{
		Participants: res.Participants,
		Files:        res.Files,
		Skipped:      res.Skipped,
		Duration:     res.Duration,
	})
	return nil
}
