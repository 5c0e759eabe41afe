package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"medthread/internal/logger"
	"medthread/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate medication discussion threads",
		Long: `annotate reconstructs comment trees for pending posts and comments, sends each
item with its conversational context to the annotation service, writes a backup
of every result and then stores the batch.

Example usage:
  annotate run --community Mounjaro --limit 200
  annotate run --dry-run --thread abc123
  annotate replay ./data/backups/annotation_backup_mounjaro_20260101_120000.json
  annotate reset-failed --community Ozempic
  annotate submit --community Zepbound --wait`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load(".env")
			logger.Init(logger.FromEnv())
		},
	}
	root.AddCommand(newRunCmd(), newReplayCmd(), newResetFailedCmd(), newImportCmd(), newSubmitCmd())
	return root
}

type filterFlags struct {
	community string
	threads   []string
	since     string
	postsOnly bool
}

func (ff *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.community, "community", "", "only items from this community")
	cmd.Flags().StringSliceVar(&ff.threads, "thread", nil, "only these thread ids (repeatable)")
	cmd.Flags().StringVar(&ff.since, "since", "", "only items created at or after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&ff.postsOnly, "posts-only", false, "annotate posts only; comments still provide context")
}

func (ff filterFlags) filter() (models.Filter, error) {
	f := models.Filter{Community: strings.TrimSpace(ff.community), PostsOnly: ff.postsOnly}
	for _, t := range ff.threads {
		if t = strings.TrimSpace(t); t != "" {
			f.ThreadIDs = append(f.ThreadIDs, t)
		}
	}
	since, err := parseSince(ff.since)
	if err != nil {
		return models.Filter{}, err
	}
	f.Since = since
	return f, nil
}

func parseSince(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --since %q: want RFC3339 or YYYY-MM-DD", s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
