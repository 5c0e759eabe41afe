package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"medthread/internal/app"
	"medthread/internal/config"
	"medthread/internal/logger"
	"medthread/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <items.json|items.jsonl>",
		Short: "Load posts and comments into the source table",
		Long: `Reads source items as a JSON array or as one JSON object per line and upserts
them. Parent references may carry t3_/t1_ prefixes; records without an id, or
comments without a thread id, are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fh.Close()
			items, dropped, err := readItems(fh)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()
			a, err := app.NewMaintenance(ctx, config.Load(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Store.UpsertItems(ctx, items)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"read": len(items), "dropped": dropped, "upserted": n})
		},
	}
}

// readItems accepts a JSON array or JSON lines. Malformed records are counted
// and skipped.
func readItems(r io.Reader) ([]models.SourceItem, int, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var raw []json.RawMessage
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&raw); err != nil {
			return nil, 0, fmt.Errorf("decode items: %w", err)
		}
	} else {
		sc := bufio.NewScanner(br)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			raw = append(raw, append(json.RawMessage(nil), line...))
		}
		if err := sc.Err(); err != nil {
			return nil, 0, fmt.Errorf("read items: %w", err)
		}
	}

	log := logger.Named("import")
	items := make([]models.SourceItem, 0, len(raw))
	dropped := 0
	for i, m := range raw {
		var it models.SourceItem
		if err := json.Unmarshal(m, &it); err != nil {
			dropped++
			log.Warn().Int("record", i).Err(err).Msg("skipping undecodable item")
			continue
		}
		norm, err := it.Normalize()
		if err != nil {
			dropped++
			log.Warn().Int("record", i).Err(err).Msg("skipping malformed item")
			continue
		}
		items = append(items, norm)
	}
	return items, dropped, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
