package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/engine"
	"github.com/weftlang/weft/pkg/policy"
)

func newTestCommand() *cobra.Command {
	var (
		formatID string
		marker   string
		allow    []string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "test <source>",
		Short: "Run a document's test functions",
		Long: `Discover every function carrying the test marker and execute each in its
own isolated run. A test passes when its function returns without failing;
output from passing tests is suppressed, output from failing tests prints
for diagnosis.`,
		Example: `  # Run all @fn(test) functions
  weft test person.weft

  # Tests that fetch need the capability too
  weft test api.weft --allow http`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			logger := log.Logger

			pol, err := policy.NewEngine(logger, allow)
			if err != nil {
				return err
			}
			pipeline := newPipeline(timeout)

			loader := engine.NewLoader(pipeline.Registry(), pipeline.Fetcher(), pol, logger)
			d, _, err := loader.Load(cmd.Context(), source, formatID, credentials())
			if err != nil {
				return err
			}

			tests := engine.Discover(d, marker, true)
			if len(tests) == 0 {
				fmt.Printf("no test functions in %s\n", source)
				return nil
			}

			failed := 0
			for _, fn := range tests {
				ec := engine.NewExecutionContext(cmd.Context(), logger, pipeline.Fetcher(), pipeline.Registry(), pol)
				res := engine.NewCoordinator(logger).Execute(d, fn, ec, nil)
				ec.Close()

				if res.Err != nil {
					failed++
					fmt.Printf("--- FAIL: %s (%s)\n", fn.Path, res.Duration.Round(time.Millisecond))
					for _, ev := range res.Events {
						if ev.Kind == engine.EventLine || ev.Kind == engine.EventErrorLine {
							fmt.Printf("    %s\n", ev.Text)
						}
					}
					fmt.Printf("    %s\n", res.Err)
					continue
				}
				fmt.Printf("--- PASS: %s (%s)\n", fn.Path, res.Duration.Round(time.Millisecond))
			}

			fmt.Printf("%d passed, %d failed\n", len(tests)-failed, failed)
			if failed > 0 {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatID, "format", "f", "", "override format resolution (id or extension)")
	cmd.Flags().StringVarP(&marker, "marker", "m", "test", "attribute marker selecting test functions")
	cmd.Flags().StringSliceVarP(&allow, "allow", "a", nil, "capabilities granted to the tests")
	cmd.Flags().DurationVar(&timeout, "fetch-timeout", 0, "timeout per remote fetch")

	return cmd
}
