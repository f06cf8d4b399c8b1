package cmd

import (
	"context"
	"fmt"

	"github.com/careloop/surveyengine/internal/assignment"
	"github.com/careloop/surveyengine/internal/audit"
	"github.com/careloop/surveyengine/internal/catalog"
	"github.com/careloop/surveyengine/internal/core/config"
	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/partial"
	"github.com/careloop/surveyengine/internal/rulestore"
	"github.com/careloop/surveyengine/internal/trigger"
	"github.com/careloop/surveyengine/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run pull-path trigger evaluation for one subject",
	Long: `Evaluates all active time and characteristic rules against one subject,
creating assignments in the configured database. Instrument definitions and
subject state are read from a JSON fixture file.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("subject", "", "subject id to evaluate")
	evaluateCmd.Flags().String("fixtures", "", "JSON file with instrument definitions and subjects")
	evaluateCmd.MarkFlagRequired("subject")
	evaluateCmd.MarkFlagRequired("fixtures")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := newLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	keys, err := config.SealKeys()
	if err != nil {
		return fmt.Errorf("failed to load encryption keys: %w", err)
	}
	sealer, err := partial.NewSealer(keys)
	if err != nil {
		return fmt.Errorf("no encryption keys configured (set SE_PARTIAL_KEY environment variable): %w", err)
	}

	fixturesPath, _ := cmd.Flags().GetString("fixtures")
	instruments, subjects, err := catalog.LoadFile(fixturesPath)
	if err != nil {
		return err
	}

	auditor := audit.NewRecorder(queries)
	partials := partial.NewStore(queries, sealer)
	manager := assignment.NewManager(queries, instruments, partials, auditor, log)
	rules := rulestore.NewStore(queries)
	monitor := trigger.NewMonitor(queries, cfg, auditor, log)
	engine := trigger.NewEngine(cfg, queries, rules, manager, instruments, subjects, monitor, auditor, log)

	subjectFlag, _ := cmd.Flags().GetString("subject")
	created, err := engine.Evaluate(ctx, types.SubjectID(subjectFlag))
	if err != nil {
		return err
	}

	if len(created) == 0 {
		color.Yellow("no assignments created for subject %s", subjectFlag)
		return nil
	}
	for _, a := range created {
		color.Green("created assignment %s (instrument %s, status %s)", a.AssignmentID, a.InstrumentID, a.Status)
	}
	return nil
}
