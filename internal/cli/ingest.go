package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/domain/model"
)

// maxLineBytes bounds one JSONL record.
const maxLineBytes = 1 << 20

// ingestSummary counts outcomes of a bulk ingest.
type ingestSummary struct {
	mu       sync.Mutex
	Lines    int            `json:"lines"`
	Invalid  int            `json:"invalid"`
	Failed   int            `json:"failed"`
	Outcomes map[string]int `json:"outcomes"`
	Links    int            `json:"links"`
}

func (s *ingestSummary) add(res app.IngestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outcomes[string(res.Status)]++
	s.Links += len(res.Links)
}

func (s *ingestSummary) fail(invalid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if invalid {
		s.Invalid++
	} else {
		s.Failed++
	}
}

func newIngestCommand(opts *options) *cobra.Command {
	var workers int
	var strict bool
	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>",
		Short: "Ingest raw claims from a JSON Lines file",
		Long: `Each line is one raw claim. Claims are deduplicated, mapped and
stored exactly as through the API. Use - to read standard input.

Example:
  signpostctl ingest claims.jsonl --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			return opts.withService(cmd.Context(), func(svc *app.Service) error {
				sum, err := ingestLines(cmd.Context(), svc, in, workers, strict, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sum)
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent ingesters")
	cmd.Flags().BoolVar(&strict, "strict", false, "stop at the first invalid or failed claim")
	return cmd
}

// claimIngester is the part of the service bulk ingestion needs.
type claimIngester interface {
	Ingest(ctx context.Context, raw model.RawClaim) (app.IngestResult, error)
}

func ingestLines(ctx context.Context, svc claimIngester, in io.Reader, workers int, strict bool, errOut io.Writer) (*ingestSummary, error) {
	sum := &ingestSummary{Outcomes: map[string]int{}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	var logMu sync.Mutex
	report := func(line int, err error) {
		logMu.Lock()
		defer logMu.Unlock()
		fmt.Fprintf(errOut, "line %d: %v\n", line, err)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		if gctx.Err() != nil {
			break
		}
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		sum.Lines++
		var raw model.RawClaim
		if err := json.Unmarshal(b, &raw); err != nil {
			sum.fail(true)
			report(line, err)
			if strict {
				_ = g.Wait()
				return sum, fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		line := line
		g.Go(func() error {
			res, err := svc.Ingest(gctx, raw)
			if err != nil {
				sum.fail(errors.Is(err, model.ErrInvalidClaim))
				report(line, err)
				if strict {
					return fmt.Errorf("line %d: %w", line, err)
				}
				return nil
			}
			sum.add(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := sc.Err(); err != nil {
		return sum, fmt.Errorf("read input: %w", err)
	}
	return sum, nil
}
