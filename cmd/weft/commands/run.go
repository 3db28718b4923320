package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/engine"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/policy"
	"github.com/weftlang/weft/pkg/server"
	"github.com/weftlang/weft/pkg/watch"
)

func newRunCommand() *cobra.Command {
	var (
		formatID    string
		valueFormat string
		entryPoint  string
		marker      string
		allow       []string
		policyFiles []string
		args        map[string]string
		partial     bool
		watchMode   bool
		on          string
		parseLocal  bool
		timeout     time.Duration
		codecs      []string
	)

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Load a document and execute its entry function",
		Long: `Load a document, discover its marked entry function, execute it, and
commit the output.

Sources can be a document file, a package directory carrying a pkg.weft
manifest, or an http(s) URI. Output lines print to stdout in program order;
the entry function's return value renders last. A failed run commits nothing
unless partial output is requested.`,
		Example: `  # Run a document's main entry function
  weft run person.weft

  # Render the return value as TOML
  weft run person.weft --out toml

  # Choose an entry function and pass arguments
  weft run tasks.weft --entrypoint root.deploy --arg env=production

  # Allow network fetches and re-run on change
  weft run report.weft --allow http --watch

  # Execute on a remote runner
  weft run report.weft --on runner.internal:4040 -u alice -p secret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			source := posArgs[0]

			if on != "" {
				return runRemote(cmd.Context(), remoteOptions{
					addr:        on,
					source:      source,
					format:      formatID,
					valueFormat: valueFormat,
					entryPoint:  entryPoint,
					marker:      marker,
					allow:       allow,
					partial:     partial,
					parseLocal:  parseLocal,
				})
			}

			opts := engine.NewOptions(source)
			opts.Format = formatID
			opts.EntryPoint = entryPoint
			opts.Allow = allow
			opts.Credentials = credentials()
			opts.FetchTimeout = timeout
			if marker != "" {
				opts.Marker = marker
			}
			if len(args) > 0 {
				opts.Args = make(map[string]any, len(args))
				for k, v := range args {
					opts.Args[k] = v
				}
			}
			policies, err := loadPolicyFiles(policyFiles)
			if err != nil {
				return err
			}
			opts.Policies = policies

			reg := format.NewRegistry()
			closeCodecs, err := loadWASMCodecs(cmd.Context(), reg, codecs)
			if err != nil {
				return err
			}
			defer closeCodecs()

			pipeline := engine.NewPipeline(log.Logger, reg, fetch.NewClient(timeout, log.Logger))
			committer := engine.NewCommitter(os.Stdout, os.Stderr, pipeline.Registry())
			if valueFormat != "" {
				committer.SetValueFormat(format.ID(valueFormat))
			}
			committer.SetPartialOnFailure(partial)

			runOnce := func(ctx context.Context) error {
				res := pipeline.Run(ctx, opts)
				if err := committer.Commit(res); err != nil {
					return fmt.Errorf("failed to commit output: %w", err)
				}
				if res.Err != nil {
					return fmt.Errorf("run failed: %w", res.Err)
				}
				return nil
			}

			if watchMode {
				if err := runOnce(cmd.Context()); err != nil {
					log.Error().Err(err).Msg("Run failed, watching for changes")
				}
				w := watch.NewWatcher(log.Logger)
				return w.Watch(cmd.Context(), source, func(ctx context.Context) {
					if err := runOnce(ctx); err != nil {
						log.Error().Err(err).Msg("Run failed, watching for changes")
					}
				})
			}
			return runOnce(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&formatID, "format", "f", "", "override format resolution (id or extension)")
	cmd.Flags().StringVarP(&valueFormat, "out", "o", "", "format for the rendered return value")
	cmd.Flags().StringVarP(&entryPoint, "entrypoint", "e", "", "run a specific function instead of discovering one")
	cmd.Flags().StringVarP(&marker, "marker", "m", "", "attribute marker selecting entry candidates (default main)")
	cmd.Flags().StringSliceVarP(&allow, "allow", "a", nil, "capabilities granted to the run (e.g. http)")
	cmd.Flags().StringSliceVar(&policyFiles, "policy", nil, "additional Rego policy files")
	cmd.Flags().StringToStringVar(&args, "arg", nil, "entry function arguments (key=value)")
	cmd.Flags().BoolVar(&partial, "partial-output", false, "commit buffered output even when the run fails")
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-run whenever the source changes")
	cmd.Flags().StringVar(&on, "on", "", "execute on a remote runner at this address")
	cmd.Flags().BoolVar(&parseLocal, "parse-local", false, "parse locally and ship the binary form to the remote runner")
	cmd.Flags().DurationVar(&timeout, "fetch-timeout", 0, "timeout per remote fetch")
	cmd.Flags().StringSliceVar(&codecs, "codec", nil, "external WASM codec plugins (id=path.wasm)")

	return cmd
}

type remoteOptions struct {
	addr        string
	source      string
	format      string
	valueFormat string
	entryPoint  string
	marker      string
	allow       []string
	partial     bool
	parseLocal  bool
}

// runRemote ships the document to a runner service and prints its reply.
func runRemote(ctx context.Context, ro remoteOptions) error {
	if engine.IsRemote(ro.source) {
		return fmt.Errorf("remote execution needs a local document, got %s", ro.source)
	}

	name := filepath.Base(ro.source)
	var data []byte
	var contentType string
	if ro.parseLocal {
		// Parse here so syntax errors surface locally, then ship the
		// binary form the runner can load without re-parsing source.
		reg := format.NewRegistry()
		pol, err := policy.NewEngine(log.Logger, nil)
		if err != nil {
			return err
		}
		d, _, err := engine.NewLoader(reg, fetch.NewClient(0, log.Logger), pol, log.Logger).
			Load(ctx, ro.source, ro.format, credentials())
		if err != nil {
			return err
		}
		codec, err := reg.Codec(format.Binary)
		if err != nil {
			return err
		}
		data, err = codec.Encode(d)
		if err != nil {
			return err
		}
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".bweft"
		contentType = reg.ContentType(format.Binary)
		ro.format = string(format.Binary)
	} else {
		var err error
		data, err = os.ReadFile(ro.source)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
	}

	client := server.NewClient(ro.addr)
	resp, err := client.Run(ctx, server.RunRequest{
		Name:        name,
		Data:        data,
		ContentType: contentType,
		Format:      ro.format,
		EntryPoint:  ro.entryPoint,
		Marker:      ro.marker,
		Allow:       ro.allow,
		ValueFormat: ro.valueFormat,
		Partial:     ro.partial,
	}, credentials())
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, resp.Output)
	fmt.Fprint(os.Stderr, resp.ErrorOutput)
	if resp.State == string(engine.StateFailed) {
		return fmt.Errorf("remote run failed: %s", resp.Error)
	}
	return nil
}

// loadPolicyFiles reads Rego modules keyed by base filename.
func loadPolicyFiles(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out[name] = string(data)
	}
	return out, nil
}
