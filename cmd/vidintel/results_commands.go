package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidintel/internal/queueaccess"
)

func newEntitiesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "entities <video-id>",
		Short: "Show canonical entities and tags for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(access queueaccess.Access) error {
				resp, err := access.Entities(cmd.Context(), args[0])
				if err != nil {
					return notFoundMessage(err, "video", args[0])
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(resp.Entities))
				for _, e := range resp.Entities {
					rows = append(rows, []string{
						e.Type,
						e.CanonicalName,
						orDash(strings.Join(e.Aliases, ", ")),
						strconv.Itoa(e.Mentions),
					})
				}
				printTable(out, []column{
					{title: "Type"},
					{title: "Name", maxWidth: 40},
					{title: "Aliases", maxWidth: 40},
					{title: "Mentions", numeric: true},
				}, rows, "No entities found")
				if len(resp.Tags) > 0 {
					fmt.Fprintf(out, "Tags: %s\n", strings.Join(resp.Tags, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newChaptersCommand(ctx *commandContext) *cobra.Command {
	var (
		source string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "chapters <video-id>",
		Short: "Show chapters and significant marks for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(access queueaccess.Access) error {
				resp, err := access.Chapters(cmd.Context(), args[0], source)
				if err != nil {
					return notFoundMessage(err, "video", args[0])
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(resp.Chapters))
				for _, ch := range resp.Chapters {
					confidence := "-"
					if ch.Confidence != nil {
						confidence = strconv.FormatFloat(*ch.Confidence, 'f', 2, 64)
					}
					rows = append(rows, []string{
						formatMs(ch.StartMs),
						formatMs(ch.EndMs),
						ch.Title,
						ch.Source,
						orDash(strings.Join(ch.Signals, ",")),
						confidence,
					})
				}
				printTable(out, []column{
					{title: "Start", numeric: true},
					{title: "End", numeric: true},
					{title: "Title", maxWidth: 48},
					{title: "Source"},
					{title: "Signals", maxWidth: 32},
					{title: "Conf", numeric: true},
				}, rows, "No chapters found")

				if len(resp.Marks) == 0 {
					return nil
				}
				markRows := make([][]string, 0, len(resp.Marks))
				for _, m := range resp.Marks {
					markRows = append(markRows, []string{
						formatMs(m.TimestampMs),
						m.MarkType,
						strconv.FormatFloat(m.Confidence, 'f', 2, 64),
						orDash(m.Description),
					})
				}
				fmt.Fprintln(out)
				printTable(out, []column{
					{title: "At", numeric: true},
					{title: "Mark"},
					{title: "Conf", numeric: true},
					{title: "Description", maxWidth: 60},
				}, markRows, "")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Only chapters from this source (signals, creator, llm)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
