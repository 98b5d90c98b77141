package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	cli "github.com/spf13/cobra"

	"github.com/John-Robertt/photosort/internal/app"
	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/config"
	"github.com/John-Robertt/photosort/internal/domain"
	"github.com/John-Robertt/photosort/internal/scan"
)

// listing 是 `photosort scan` 在非 TTY 下输出的 JSON。
type listing struct {
	Path    string      `json:"path"`
	Scanned time.Time   `json:"scanned_at"`
	Pairs   []pairEntry `json:"pairs"`
}

type pairEntry struct {
	ID       string     `json:"id"`
	Basename string     `json:"basename"`
	JPEG     *fileEntry `json:"jpeg,omitempty"`
	DNG      *fileEntry `json:"dng,omitempty"`
}

type fileEntry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func toFileEntry(f *domain.PhotoFile) *fileEntry {
	if f == nil {
		return nil
	}
	return &fileEntry{Name: f.Name, Size: f.Size, ModTime: f.ModTime.UTC()}
}

func newScanCmd(e *env, code *int) *cli.Command {
	f := &flags{}
	return &cli.Command{
		Use:   "scan [path]",
		Short: "列出目录中的照片 pair（不修改任何文件）",
		Args:  cli.MaximumNArgs(1),
		RunE: func(cmd *cli.Command, args []string) error {
			*code = scanCmd(cmd.Context(), e, cliArgs(cmd, args, f))
			return nil
		},
	}
}

func scanCmd(ctx context.Context, e *env, ca config.CLIArgs) int {
	eff, err := loadConfig(ctx, e, ca)
	if err != nil {
		if capfs.IsNoSelection(err) {
			fmt.Fprintln(e.stderr, "未选择目录。")
			return 0
		}
		fmt.Fprintf(e.stderr, "%s: %v\n", config.Code(err), err)
		return 1
	}

	dir, err := capfs.PathPicker{Path: eff.Path}.Pick(ctx)
	if err != nil {
		if capfs.IsNoSelection(err) {
			fmt.Fprintf(e.stderr, "无法访问目录（%v）。\n", err)
			return 0
		}
		fmt.Fprintf(e.stderr, "%s: %v\n", domain.ErrCodeNoSelection, err)
		return 1
	}
	defer dir.Revoke()

	files, err := scan.Enumerate(ctx, dir, nil)
	if err != nil {
		fmt.Fprintf(e.stderr, "%s: %v\n", domain.ErrCodeScanFailed, err)
		return 1
	}
	pairs := app.GroupPairs(files)

	out := listing{Path: dir.Path(), Scanned: time.Now().UTC(), Pairs: make([]pairEntry, 0, len(pairs))}
	for _, p := range pairs {
		out.Pairs = append(out.Pairs, pairEntry{
			ID:       p.ID,
			Basename: p.Basename,
			JPEG:     toFileEntry(p.JPEG),
			DNG:      toFileEntry(p.DNG),
		})
	}

	if e.stdoutTTY {
		printTable(e, out)
	} else {
		enc := json.NewEncoder(e.stdout)
		_ = enc.Encode(out)
	}
	fmt.Fprintf(e.stderr, "扫描完成：files=%d pairs=%d\n", len(files), len(pairs))
	return 0
}

func printTable(e *env, l listing) {
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BASENAME\tJPG\tDNG")
	for _, p := range l.Pairs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Basename, mark(p.JPEG), mark(p.DNG))
	}
	_ = tw.Flush()
}

func mark(f *fileEntry) string {
	if f == nil {
		return "-"
	}
	return f.Name
}
