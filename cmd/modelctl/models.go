package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modelstation/modelstation/internal/model"
)

func modelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "List and create models",
	}
	cmd.AddCommand(modelsListCmd(a), modelsCreateCmd(a))
	return cmd
}

func modelsListCmd(a *app) *cobra.Command {
	var (
		statuses []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your models, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.signedIn()
			if err != nil {
				return err
			}
			models, err := c.ListModels(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(models)
			}
			return printModels(a, models)
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "only models in these statuses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printModels(a *app, models []*model.Model) error {
	if len(models) == 0 {
		fmt.Fprintln(a.out, "No models yet")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tBASE MODEL\tLAST TRAINED")
	for _, m := range models {
		last := "-"
		if m.LastTrained != nil {
			last = *m.LastTrained
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Status, dash(m.BaseModel), last)
	}
	return tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func modelsCreateCmd(a *app) *cobra.Command {
	var (
		in          model.CreateModelInput
		lastTrained string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lastTrained != "" {
				in.LastTrained = &lastTrained
			}

			c, err := a.signedIn()
			if err != nil {
				return err
			}
			m, err := c.CreateModel(cmd.Context(), in)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Created model %s (%s) with status %s\n", m.Name, m.ID, m.Status)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "model name")
	f.StringVar(&in.Domain, "domain", "", "problem domain")
	f.StringVar(&in.BaseModel, "base-model", "", "base model to fine-tune")
	f.StringVar(&in.Dataset, "dataset", "", "training dataset")
	f.StringVar(&in.Status, "status", "", "initial status (training or queued)")
	f.StringArrayVar(&in.Metrics, "metric", nil, "headline metric, repeatable")
	f.StringArrayVar(&in.Highlights, "highlight", nil, "highlight, repeatable")
	f.StringVar(&lastTrained, "last-trained", "", "free-form last trained label")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
