package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

const (
	fileKind      = "file"
	aggregateKind = "aggregate"
)

type EnqueueOptions struct {
	GlobalOptions
}

func DefaultEnqueueOptions() *EnqueueOptions {
	return &EnqueueOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdEnqueue() *cobra.Command {
	o := DefaultEnqueueOptions()
	cmd := &cobra.Command{
		Use:   "enqueue (file DOC_ID | aggregate BATCH_ID)",
		Short: "Enqueue a processing or aggregation job.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
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

func (o *EnqueueOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	kind := strings.ToLower(args[0])
	if kind != fileKind && kind != aggregateKind {
		return fmt.Errorf("unsupported job kind: %s", args[0])
	}
	return nil
}

type acceptedReply struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id"`
}

func (o *EnqueueOptions) Run(ctx context.Context, args []string) error {
	kind, id := strings.ToLower(args[0]), args[1]

	var path string
	switch kind {
	case fileKind:
		path = fmt.Sprintf("/api/v1/files/%s/process", id)
	case aggregateKind:
		path = fmt.Sprintf("/api/v1/batches/%s/aggregate", id)
	}

	var reply acceptedReply
	if err := o.postJSON(ctx, path, nil, http.StatusAccepted, &reply); err != nil {
		return fmt.Errorf("enqueueing %s/%s: %w", kind, id, err)
	}

	fmt.Printf("accepted %s/%s\n", kind, reply.ID)
	return nil
}
