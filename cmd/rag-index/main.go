// Package main provides the indexing and query CLI for docrag.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docrag/internal/config"
	"github.com/bull/docrag/internal/indexer"
	"github.com/bull/docrag/internal/loader"
	"github.com/bull/docrag/internal/rag"
	"github.com/bull/docrag/internal/record"
	"github.com/bull/docrag/internal/retrieval"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rag-index",
	Short: "Build, inspect and query document indexes",
	Long: `CLI tool for managing document indexes in the vector store.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY OpenAI API key for embeddings and chat (required)
  GITHUB_TOKEN   GitHub token for github:// inputs (optional)`,
	SilenceUsage: true,
}

var buildOpts struct {
	dir          string
	files        []string
	name         string
	indexType    string
	ext          string
	chunkSize    int
	chunkOverlap int
	chunkSizes   []int
	windowSize   int
	overwrite    bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an index from a directory or a list of files",
	Long: `Loads the inputs, splits them with the chosen strategy, embeds the
chunks and stores them as a named index.

Inputs are a local directory (non-recursive), explicit files, or a
github://owner/repo/path[@ref] reference.`,
	Example: `  rag-index build --dir ./papers --ext md,txt --name papers
  rag-index build --file a.md --file b.md --name notes --type automerging
  rag-index build --dir github://golang/go/doc --name godoc --type sentence_window`,
	RunE: runBuild,
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexes",
	RunE:  runList,
}

var queryOpts struct {
	indexes   []string
	topK      int
	recordDir string
	sources   bool
}

var queryCmd = &cobra.Command{
	Use:   "query QUESTION",
	Short: "Answer a question from one or more indexes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var chatCmd = &cobra.Command{
	Use:   "chat QUESTION",
	Short: "Ask the model directly, without retrieval",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	f := buildCmd.Flags()
	f.StringVar(&buildOpts.dir, "dir", "", "directory or github:// reference to index")
	f.StringArrayVar(&buildOpts.files, "file", nil, "file to index (repeatable)")
	f.StringVar(&buildOpts.name, "name", "", "index name (required)")
	f.StringVar(&buildOpts.indexType, "type", "basic", "index type: basic, automerging or sentence_window")
	f.StringVar(&buildOpts.ext, "ext", "", "comma-separated extensions to include from --dir")
	f.IntVar(&buildOpts.chunkSize, "chunk-size", 1024, "chunk size in characters (basic)")
	f.IntVar(&buildOpts.chunkOverlap, "chunk-overlap", 200, "chunk overlap in characters (basic)")
	f.IntSliceVar(&buildOpts.chunkSizes, "chunk-sizes", nil, "hierarchy sizes, largest first (automerging)")
	f.IntVar(&buildOpts.windowSize, "window-size", 0, "sentences on each side (sentence_window)")
	f.BoolVar(&buildOpts.overwrite, "overwrite", false, "replace an existing index of the same name")
	_ = buildCmd.MarkFlagRequired("name")
	buildCmd.MarkFlagsOneRequired("dir", "file")

	for _, c := range []*cobra.Command{queryCmd, chatCmd} {
		c.Flags().StringVar(&queryOpts.recordDir, "record-dir", "", "directory for the transcript (default from config)")
	}
	queryCmd.Flags().StringSliceVar(&queryOpts.indexes, "index", nil, "index to search (repeatable, required)")
	queryCmd.Flags().IntVar(&queryOpts.topK, "top-k", 0, "number of passages to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryOpts.sources, "sources", false, "print the retrieved sources after the answer")
	_ = queryCmd.MarkFlagRequired("index")

	rootCmd.AddCommand(buildCmd, deleteCmd, listCmd, queryCmd, chatCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openService(ctx context.Context) (*rag.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	svc, err := rag.Open(ctx, cfg, cfg.Log.NewLogger(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("Failed to open service: %w", err)
	}
	return svc, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Building %s index %q...\n", buildOpts.indexType, buildOpts.name)

	res, err := svc.BuildIndex(ctx, indexer.Request{
		Input: loader.Input{
			Dir:        buildOpts.dir,
			Files:      buildOpts.files,
			Extensions: buildOpts.ext,
		},
		IndexName:    buildOpts.name,
		IndexType:    buildOpts.indexType,
		ChunkSize:    buildOpts.chunkSize,
		ChunkOverlap: buildOpts.chunkOverlap,
		ChunkSizes:   buildOpts.chunkSizes,
		WindowSize:   buildOpts.windowSize,
		Overwrite:    buildOpts.overwrite,
	})
	if err != nil {
		return fmt.Errorf("Indexing failed: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Build complete!")
	fmt.Fprintf(out, "  Files: %d\n", res.NumFiles)
	fmt.Fprintf(out, "  Nodes: %d (%d embedded)\n", res.NumNodes, res.NumEmbedded)
	fmt.Fprintf(out, "  Replaced: %t\n", res.Replaced)
	fmt.Fprintf(out, "  Duration: %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.DeleteIndex(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted index %q\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	infos, err := svc.Indexes(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No indexes.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tPOINTS\tFILES\tBUILT")
	for _, info := range infos {
		strategy, files, built := "-", "-", "-"
		if m := info.Manifest; m != nil {
			strategy = m.Strategy
			files = fmt.Sprint(m.NumFiles)
			built = m.BuiltAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", info.Name, strategy, info.Points, files, built)
	}
	return tw.Flush()
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	answer, err := svc.Query(ctx, retrieval.Query{
		Question:   strings.Join(args, " "),
		IndexNames: queryOpts.indexes,
		TopK:       queryOpts.topK,
	}, queryOpts.recordDir)
	if err != nil {
		return err
	}
	if err := printAnswer(cmd, answer); err != nil {
		return err
	}
	if queryOpts.sources {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), record.FormatSources(answer.Sources))
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	answer, err := svc.Chat(ctx, strings.Join(args, " "), queryOpts.recordDir)
	if err != nil {
		return err
	}
	return printAnswer(cmd, answer)
}

// printAnswer streams fragments to stdout and reports the transcript path
// on stderr.
func printAnswer(cmd *cobra.Command, answer *rag.Answer) error {
	out := cmd.OutOrStdout()
	for frag, err := range answer.Stream {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, frag)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(cmd.ErrOrStderr(), "Transcript: %s\n", answer.RecordPath())
	return nil
}
