package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bitbucket.org/mmdatafocus/ops_backend/events"
)

type dispatchResult struct {
	EventId string      `json:"event_id"`
	Kind    events.Kind `json:"kind"`
	Error   string      `json:"error,omitempty"`
}

func dispatchCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run cascades for the envelopes in a JSON file (one object or an array)",
		RunE: func(cmd *cobra.Command, args []string) error {
			envs, err := readEnvelopes(file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			results := make([]dispatchResult, 0, len(envs))
			failed := 0
			for _, env := range envs {
				r := dispatchResult{EventId: env.ID, Kind: env.Kind}
				if err := application.orchestrator.Dispatch(ctx, env); err != nil {
					r.Error = err.Error()
					failed++
				}
				results = append(results, r)
			}
			if _, _, err := application.outbox.DispatchOnce(ctx); err != nil {
				application.logger.Warn("outbox drain: " + err.Error())
			}

			rows := make([]table.Row, 0, len(results))
			for _, r := range results {
				status := "ok"
				if r.Error != "" {
					status = r.Error
				}
				rows = append(rows, table.Row{r.EventId, r.Kind, status})
			}
			if err := render(results, table.Row{"Event", "Kind", "Result"}, rows); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d events failed", failed, len(envs))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "envelope file, - for stdin")
	return cmd
}

func readEnvelopes(path string) ([]events.Envelope, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var envs []events.Envelope
		if err := json.Unmarshal(data, &envs); err != nil {
			return nil, fmt.Errorf("decode envelopes: %w", err)
		}
		return envs, nil
	}
	env, err := events.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return []events.Envelope{env}, nil
}
