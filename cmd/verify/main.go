// File: cmd/verify/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"social-pipeline/internal/config"
)

func main() {
	if err := newVerifyCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newVerifyCmd() *cobra.Command {
	var (
		cfgPath string
		reveal  bool
	)
	cmd := &cobra.Command{
		Use:           "verify",
		Short:         "Check the pipeline configuration and show which platforms are enabled",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.LoadConfig(cfgPath, reveal)
			if err != nil {
				fmt.Fprintf(out, "configuration invalid: %v\n", err)
				return err
			}
			r := Report(cfg, reveal)
			writeReport(out, r)
			if missing := r.Missing(); len(missing) > 0 {
				err := fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
				fmt.Fprintf(out, "\n%v\n", err)
				return err
			}
			fmt.Fprintln(out, "\nconfiguration OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML config file (optional)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets unmasked")
	return cmd
}
