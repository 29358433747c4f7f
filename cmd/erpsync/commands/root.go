// Package commands implements the erpsync command line interface.
package commands

import (
	"context"
	"io"

	"github.com/erp/client/internal/app"
	appoffline "github.com/erp/client/internal/application/offline"
	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/interfaces/http/dto"
	"github.com/spf13/cobra"
)

// Application is implemented by app.App
type Application interface {
	Serve(ctx context.Context, opts app.Options) error
	Pending(ctx context.Context, opts app.Options) ([]*offline.PendingChange, error)
	Flush(ctx context.Context, opts app.Options) (appoffline.FlushReport, error)
	Status(ctx context.Context, opts app.Options) (dto.StatusResponse, error)
}

// CLI represents the erpsync command line
type CLI struct {
	app     Application
	rootCmd *cobra.Command
	opts    app.Options
}

// New creates a CLI running commands against a
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "erpsync",
		Short:         "Offline synchronization daemon for the ERP client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c := &CLI{app: a, rootCmd: rootCmd}

	rootCmd.PersistentFlags().StringVarP(&c.opts.ConfigPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&c.opts.Addr, "addr", "", "Address of the local API, overrides http.addr")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newPendingCmd())
	rootCmd.AddCommand(c.newFlushCmd())
	rootCmd.AddCommand(c.newStatusCmd())

	return c
}

// Execute runs the root command with the given context
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
