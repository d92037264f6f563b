package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/DocOps/issuer/internal/config"
	"github.com/DocOps/issuer/internal/runlog"
)

// RunsCommand returns the runs command for inspecting past submissions
func RunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect and manage run records",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List recorded runs, newest first",
				Action: runRunsList,
			},
			{
				Name:      "show",
				Usage:     "Show one run record as JSON",
				ArgsUsage: "RUN_ID",
				Action:    runRunsShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete one run record",
				ArgsUsage: "RUN_ID",
				Action:    runRunsDelete,
			},
		},
	}
}

func openTracker(c *cli.Context) (*runlog.Tracker, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return runlog.NewTracker(cfg.General.RunsDir)
}

func runRunsList(c *cli.Context) error {
	tracker, err := openTracker(c)
	if err != nil {
		return err
	}

	runs, err := tracker.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%-28s %-12s project=%s issues=%d versions=%d tags=%d\n",
			run.ID, run.Status, run.Metadata["project"],
			run.Counts["issues"], run.Counts["versions"], run.Counts["tags"])
	}
	return nil
}

func runRunsShow(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("run ID argument is required")
	}
	tracker, err := openTracker(c)
	if err != nil {
		return err
	}

	run, err := tracker.Get(c.Args().First())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

func runRunsDelete(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("run ID argument is required")
	}
	tracker, err := openTracker(c)
	if err != nil {
		return err
	}

	if err := tracker.Delete(c.Args().First()); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", c.Args().First())
	return nil
}
