// Command timelinectl is the operator CLI for the timeline service.
//
//	timelinectl import subjects.yaml            publish upserts to kafka
//	timelinectl import --delete gone.yaml       publish deletes
//	timelinectl layout subjects.yaml --kind Event --page 1
//
// layout packs a subject file offline with the same engine the service uses
// and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/importer"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/service"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/store"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/validator"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRoot().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "timelinectl",
		Short:        "Timeline lane layout tools",
		SilenceUsage: true,
		// stdout carries JSON results only.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(newImportCommand(opts))
	root.AddCommand(newLayoutCommand(opts))
	return root
}

func newImportCommand(root *rootOptions) *cobra.Command {
	var del bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Publish a subject file to the import topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			subjects, err := importer.LoadFile(args[0])
			if err != nil {
				return err
			}
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SubjectImport)
			defer producer.Close()

			op := importer.OpUpsert
			if del {
				op = importer.OpDelete
			}
			res, err := importer.NewPublisher(producer).Publish(cmd.Context(), op, subjects)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&del, "delete", false, "publish deletes for the listed subject ids")
	return cmd
}

type layoutFlags struct {
	kind     string
	subject  string
	page     int
	excluded []string
	from     string
	to       string
}

func newLayoutCommand(root *rootOptions) *cobra.Command {
	f := &layoutFlags{}
	cmd := &cobra.Command{
		Use:   "layout FILE",
		Short: "Pack a subject file offline and print the layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			subjects, err := importer.LoadFile(args[0])
			if err != nil {
				return err
			}
			for i, s := range subjects {
				if err := validator.ValidateSubject(s); err != nil {
					return fmt.Errorf("subject %d (%q): %w", i, s.ID, err)
				}
			}

			req, err := validator.ParseLayoutRequest(f.values(), validator.Defaults{
				From: cfg.Timeline.DefaultFrom,
				To:   cfg.Timeline.DefaultTo,
			})
			if err != nil {
				return err
			}

			engine := lanes.NewEngine(lanes.Options{
				LaneMax:         cfg.Lanes.LaneMax,
				LegacyPageIndex: cfg.Lanes.LegacyPageIndex,
			})
			svc := service.New(store.NewMemory(subjects...), engine, service.Options{}, nil)
			results, err := svc.Layout(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&f.kind, "kind", "", "only lay out this kind")
	cmd.Flags().StringVar(&f.subject, "subject", "", "return the page holding this subject id")
	cmd.Flags().IntVar(&f.page, "page", 0, "return only this 1-based page")
	cmd.Flags().StringSliceVar(&f.excluded, "excluded", nil, "categories to leave out of the lanes")
	cmd.Flags().StringVar(&f.from, "from", "", "window start (default from config)")
	cmd.Flags().StringVar(&f.to, "to", "", "window end (default from config)")
	return cmd
}

// values renders the flags as the query the HTTP API would receive, so the
// CLI validates exactly like the service.
func (f *layoutFlags) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("kind", f.kind)
	set("subject", f.subject)
	set("from", f.from)
	set("to", f.to)
	if f.page != 0 {
		q.Set("page", strconv.Itoa(f.page))
	}
	if len(f.excluded) > 0 {
		q.Set("excluded", strings.Join(f.excluded, ","))
	}
	return q
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
