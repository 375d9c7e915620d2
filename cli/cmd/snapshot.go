package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/config"
	"github.com/lookervault/lookervault/cli/render"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/snapshot"
)

// SnapshotCommand returns the snapshot command with subcommands.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Ship the local store to and from object storage",
		Subcommands: []*cli.Command{
			snapshotUploadCommand(),
			snapshotListCommand(),
			snapshotDownloadCommand(),
			snapshotDeleteCommand(),
			snapshotCleanupCommand(),
		},
	}
}

func snapshotFlags() []cli.Flag {
	return append(ReadOnlyFlags(),
		&cli.StringFlag{
			Name:  "bucket",
			Usage: "Object storage bucket",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Key prefix within the bucket",
		},
	)
}

// snapshotClient builds the object storage client, flags over config.
func snapshotClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (*snapshot.Client, error) {
	s3cfg := snapshot.S3Config{
		Bucket:       cfg.Snapshot.Bucket,
		Prefix:       cfg.Snapshot.Prefix,
		Region:       cfg.Snapshot.Region,
		Endpoint:     cfg.Snapshot.Endpoint,
		UsePathStyle: cfg.Snapshot.UsePathStyle,
	}
	client, err := snapshot.NewClient(ctx, s3cfg, logger)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("snapshot: %v", err), exitConfig)
	}
	return client, nil
}

// snapshotSetup resolves config with flag overrides and builds the client.
func snapshotSetup(c *cli.Context) (*config.Config, *snapshot.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	if bucket := c.String("bucket"); bucket != "" {
		cfg.Snapshot.Bucket = bucket
	}
	if prefix := c.String("prefix"); prefix != "" {
		cfg.Snapshot.Prefix = prefix
	}
	client, err := snapshotClient(c.Context, cfg, log.NewLogger())
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func snapshotUploadCommand() *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "Upload the local store as a new snapshot",
		Flags: append(snapshotFlags(),
			&cli.BoolFlag{
				Name:  "compress",
				Usage: "Gzip the store file before upload",
			},
		),
		Action: snapshotUploadAction,
	}
}

func snapshotUploadAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, client, err := snapshotSetup(c)
	if err != nil {
		return err
	}

	compress := cfg.Snapshot.Compress || c.Bool("compress")
	ref, err := client.Upload(c.Context, cfg.DBPath(), snapshot.UploadOptions{Compress: compress})
	if err != nil {
		return runExit(err)
	}
	return r.Render(map[string]any{"ref": ref})
}

func snapshotListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List snapshots, newest first",
		Flags:  snapshotFlags(),
		Action: snapshotListAction,
	}
}

// SnapshotInfo is the rendered view of one stored snapshot.
type SnapshotInfo struct {
	Ref          string `json:"ref"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	Compressed   bool   `json:"compressed,omitempty"`
}

func snapshotListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	_, client, err := snapshotSetup(c)
	if err != nil {
		return err
	}

	infos, err := client.List(c.Context)
	if err != nil {
		return runExit(err)
	}
	out := make([]SnapshotInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, SnapshotInfo{
			Ref:          info.Ref,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
			Compressed:   info.Compressed,
		})
	}
	return r.Render(out)
}

func snapshotDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download a snapshot over the local store path",
		ArgsUsage: "<ref>",
		Flags:     snapshotFlags(),
		Action:    snapshotDownloadAction,
	}
}

func snapshotDownloadAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("snapshot ref required", exitConfig)
	}
	ref := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, client, err := snapshotSetup(c)
	if err != nil {
		return err
	}

	if err := client.Download(c.Context, ref, cfg.DBPath()); err != nil {
		return runExit(err)
	}
	return r.Render(map[string]any{"ref": ref, "path": cfg.DBPath()})
}

func snapshotDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete one snapshot",
		ArgsUsage: "<ref>",
		Flags:     snapshotFlags(),
		Action:    snapshotDeleteAction,
	}
}

func snapshotDeleteAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("snapshot ref required", exitConfig)
	}
	ref := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	_, client, err := snapshotSetup(c)
	if err != nil {
		return err
	}

	if err := client.Delete(c.Context, ref); err != nil {
		return runExit(err)
	}
	return r.Render(map[string]any{"deleted": ref})
}

func snapshotCleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete snapshots older than the retention window",
		Flags: append(snapshotFlags(),
			&cli.DurationFlag{
				Name:  "retention",
				Usage: "Retention window (e.g. 720h)",
			},
		),
		Action: snapshotCleanupAction,
	}
}

func snapshotCleanupAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, client, err := snapshotSetup(c)
	if err != nil {
		return err
	}

	retention := c.Duration("retention")
	if retention <= 0 {
		retention = cfg.Snapshot.Retention.Duration
	}
	if retention <= 0 {
		return cli.Exit("retention required (flag --retention or config snapshot.retention)", exitConfig)
	}

	removed, err := client.Cleanup(c.Context, retention)
	if err != nil {
		return runExit(err)
	}
	return r.Render(map[string]any{"removed": removed, "count": len(removed)})
}
