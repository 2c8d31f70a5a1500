package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

const jsonFormat = "json"

var legalOutputTypes = []string{jsonFormat}

type StatusOptions struct {
	GlobalOptions

	Output string
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:   "status BATCH_ID",
		Short: "Display the processing status of a batch.",
		Args:  cobra.ExactArgs(1),
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

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

type batchStatusReply struct {
	BatchID         string     `json:"batch_id"`
	RunID           string     `json:"run_id"`
	Status          string     `json:"status"`
	TotalFiles      int64      `json:"total_files"`
	Pending         int64      `json:"pending"`
	Processing      int64      `json:"processing"`
	Success         int64      `json:"success"`
	Failed          int64      `json:"failed"`
	ProgressPercent int        `json:"progress_percent"`
	Terminal        bool       `json:"terminal"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (o *StatusOptions) Run(ctx context.Context, args []string) error {
	var reply batchStatusReply
	if err := o.getJSON(ctx, "/api/v1/batches/"+args[0], &reply); err != nil {
		return fmt.Errorf("reading batch %s: %w", args[0], err)
	}

	if o.Output == jsonFormat {
		marshalled, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "BATCH\tRUN\tSTATUS\tTOTAL\tPENDING\tPROCESSING\tSUCCESS\tFAILED\tPROGRESS")
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d%%\n",
		reply.BatchID, reply.RunID, reply.Status,
		reply.TotalFiles, reply.Pending, reply.Processing, reply.Success, reply.Failed,
		reply.ProgressPercent)
	return w.Flush()
}
