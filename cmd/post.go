package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/DocOps/issuer/internal/config"
	"github.com/DocOps/issuer/internal/imyml"
	"github.com/DocOps/issuer/internal/logging"
	"github.com/DocOps/issuer/internal/poster"
	"github.com/DocOps/issuer/internal/reconcile"
	"github.com/DocOps/issuer/internal/runlog"
	"github.com/DocOps/issuer/internal/sites"
	"github.com/DocOps/issuer/internal/sites/github"
	"github.com/DocOps/issuer/internal/sites/gitlab"
)

// PostCommand returns the post command
func PostCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Post a batch of issues to a ticket-tracking site",
		ArgsUsage: "BATCH_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "site",
				Aliases: []string{"s"},
				Usage:   "Target site (gitlab, github); overrides the batch file and config",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Target project identifier; overrides the batch file",
			},
			&cli.BoolFlag{
				Name:    "dry",
				Aliases: []string{"d"},
				Usage:   "Render what would be posted without touching the site",
			},
			&cli.BoolFlag{
				Name:    "auto",
				Aliases: []string{"a"},
				Usage:   "Create missing versions and tags without prompting",
			},
			&cli.StringSliceFlag{
				Name:    "tag",
				Aliases: []string{"t"},
				Usage:   "Tag applied to every issue in the batch (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "default-tag",
				Usage: "Tag applied to issues that declare no tags of their own (repeatable)",
			},
		},
		Action: runPost,
	}
}

func runPost(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("batch file argument is required")
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.General.LogLevel)

	batch, err := imyml.Load(c.Args().First())
	if err != nil {
		return err
	}
	if v := c.String("project"); v != "" {
		batch.Project = v
	}
	if batch.Project == "" {
		return fmt.Errorf("no target project: set project in the batch file or pass --project")
	}

	siteName := firstNonEmpty(c.String("site"), batch.Site, cfg.General.DefaultSite)
	site, err := buildSite(siteName, cfg)
	if err != nil {
		return err
	}

	if !c.Bool("dry") {
		if err := site.TestConnection(c.Context); err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
	}

	tracker, err := runlog.NewTracker(cfg.General.RunsDir)
	if err != nil {
		return err
	}

	p := &poster.Poster{
		Site:     site,
		Tracker:  tracker,
		Prompter: &reconcile.TerminalPrompter{In: os.Stdin, Out: os.Stdout},
		Options: poster.Options{
			DryRun:           c.Bool("dry"),
			Automate:         c.Bool("auto"),
			BatchAppendTags:  c.StringSlice("tag"),
			BatchDefaultTags: c.StringSlice("default-tag"),
			PaceEvery:        cfg.Post.PaceEvery,
			PaceDelay:        time.Duration(cfg.Post.PaceDelayMS) * time.Millisecond,
		},
		Out: os.Stdout,
	}

	summary, err := p.Post(c.Context, batch)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d issues failed to post", summary.Failed, summary.Planned)
	}
	return nil
}

// buildSite assembles the site registry and configures the requested site.
func buildSite(name string, cfg *config.Config) (sites.Site, error) {
	registry := sites.NewRegistry()
	registry.Register("gitlab", gitlab.New())
	registry.Register("github", github.New())

	siteCfg := map[string]any{}
	for k, v := range cfg.Sites[name] {
		siteCfg[k] = v
	}

	site, err := registry.Create(name, siteCfg)
	if err != nil {
		if err == sites.ErrSiteNotFound {
			return nil, fmt.Errorf("unknown site %q (known: gitlab, github)", name)
		}
		return nil, fmt.Errorf("failed to configure site %q: %w", name, err)
	}
	return site, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
