package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/queue"
)

// RequeueDeadOptions talks to Redis directly rather than through the API
// server: re-driving dead letters is an operator action on the queue
// itself.
type RequeueDeadOptions struct {
	Limit int
}

func DefaultRequeueDeadOptions() *RequeueDeadOptions {
	return &RequeueDeadOptions{
		Limit: 100,
	}
}

func NewCmdRequeueDead() *cobra.Command {
	o := DefaultRequeueDeadOptions()
	cmd := &cobra.Command{
		Use:   "requeue-dead",
		Short: "Move dead-lettered jobs back onto the live queue.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *RequeueDeadOptions) Bind(fs *pflag.FlagSet) {
	fs.IntVarP(&o.Limit, "limit", "l", o.Limit, "Maximum number of dead-lettered jobs to re-drive")
}

func (o *RequeueDeadOptions) Validate(args []string) error {
	if o.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", o.Limit)
	}
	return nil
}

func (o *RequeueDeadOptions) Run(ctx context.Context, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	before, err := q.DeadLetterSize(ctx)
	if err != nil {
		return fmt.Errorf("reading dead-letter size: %w", err)
	}

	moved, err := q.RequeueDead(ctx, o.Limit)
	if err != nil {
		return fmt.Errorf("requeueing dead letters: %w", err)
	}

	fmt.Printf("re-drove %d of %d dead-lettered jobs\n", moved, before)
	return nil
}
