package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/kozaktomas/face-groups/internal/batch"
	"github.com/kozaktomas/face-groups/internal/config"
	"github.com/kozaktomas/face-groups/internal/detector"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group [image...]",
	Short: "Group local images or URLs by person",
	Long: `Group images by the person they show and print the result as JSON.
Images can be local paths, file:// URLs or http(s) URLs. With --input, references
are also read from a file, one per line ("-" reads stdin).

Examples:
  face-groups group photos/*.jpg
  face-groups group --input urls.txt --threshold 0.5
  face-groups group --policy largest --metric cosine a.jpg b.jpg`,
	RunE: runGroup,
}

func init() {
	rootCmd.AddCommand(groupCmd)

	groupCmd.Flags().String("input", "", "File with one image reference per line (- for stdin)")
	groupCmd.Flags().Float64("threshold", 0, "Maximum distance for two faces to match (overrides SIMILARITY_THRESHOLD)")
	groupCmd.Flags().String("metric", "", "Distance metric: euclidean or cosine (overrides DISTANCE_METRIC)")
	groupCmd.Flags().String("policy", "", "Face used for multi-face images: first or largest (overrides FACE_POLICY)")
	groupCmd.Flags().Int("concurrency", 0, "Number of images processed in parallel (overrides CONCURRENCY)")
	groupCmd.Flags().Bool("no-progress", false, "Do not render a progress bar")
	groupCmd.Flags().Bool("pretty", false, "Indent the JSON output")
}

type groupOutputGroup struct {
	URLs  []string `json:"urls"`
	Count int      `json:"count"`
}

type groupOutput struct {
	ID      string             `json:"id"`
	Groups  []groupOutputGroup `json:"groups"`
	Skipped []batch.Skip       `json:"skipped"`
	Stats   batch.Stats        `json:"stats"`
}

// applyGroupFlags overrides config values with explicitly set flags.
func applyGroupFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("threshold") {
		cfg.Grouping.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if cmd.Flags().Changed("metric") {
		cfg.Grouping.Metric = mustGetString(cmd, "metric")
	}
	if cmd.Flags().Changed("policy") {
		cfg.Grouping.FacePolicy = mustGetString(cmd, "policy")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Batch.Concurrency = mustGetInt(cmd, "concurrency")
	}
	return cfg.Validate()
}

// readRefs reads non-empty, non-comment lines from path.
func readRefs(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
	}

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return refs, nil
}

func runGroup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyGroupFlags(cmd, cfg); err != nil {
		return err
	}

	refs := append([]string{}, args...)
	if input := mustGetString(cmd, "input"); input != "" {
		fromFile, err := readRefs(input)
		if err != nil {
			return err
		}
		refs = append(refs, fromFile...)
	}
	if len(refs) == 0 {
		return errors.New("no images given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loader, err := newDetectorLoader(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Loading face detector (%s backend)...\n", cfg.Extractor.Backend)
	gate := detector.NewGate(loader)
	gate.Start(ctx)
	defer gate.Close()
	if err := gate.Wait(ctx); err != nil {
		return err
	}

	var onProgress func(done, total int)
	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "no-progress") {
		bar = progressbar.NewOptions(len(refs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Grouping faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		onProgress = func(done, total int) {
			bar.Set(done)
		}
	}

	fetcher := &batch.SchemeFetcher{
		HTTP: batch.NewHTTPFetcher(cfg.Batch.FetchTimeout, cfg.Batch.MaxDownloadBytes),
		File: batch.NewFileFetcher(cfg.Batch.MaxDownloadBytes),
	}
	processor, err := newProcessor(cfg, fetcher, gate, onProgress)
	if err != nil {
		return err
	}

	result, err := processor.Process(ctx, refs)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("grouping images: %w", err)
	}

	out := groupOutput{
		ID:      result.ID,
		Groups:  make([]groupOutputGroup, 0, len(result.Groups)),
		Skipped: result.Skipped,
		Stats:   result.Stats,
	}
	for _, g := range result.Groups {
		out.Groups = append(out.Groups, groupOutputGroup{URLs: g.Refs, Count: len(g.Refs)})
	}

	enc := json.NewEncoder(os.Stdout)
	if mustGetBool(cmd, "pretty") {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%d images, %d recognized, %d skipped, %d groups\n",
		result.Stats.Total, result.Stats.Recognized, result.Stats.Skipped, result.Stats.Groups)
	return nil
}
