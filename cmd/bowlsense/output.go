package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/okian/bowlsense/internal/domain/model"
)

const dateLayout = "2006-01-02 15:04"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func progressLine(p model.Progress) string {
	label := p.Stage.Label()
	if label == "" {
		label = string(p.Status)
	}
	line := fmt.Sprintf("[%3.0f%%] %s", p.Percent, label)
	if p.Message != "" {
		line += " - " + p.Message
	}
	return line
}

func printAnalysis(w io.Writer, a model.Analysis) {
	fmt.Fprintf(w, "Analysis %s\n", a.ID)
	fmt.Fprintf(w, "Overall: %.0f/100 (%s)\n", a.OverallScore, rating(a.Rating))
	fmt.Fprintf(w, "Bowler:  %s, %s arm\n", a.BowlingStyle, a.BowlingArm)
	printParameters(w, a.Parameters)
	printNotes(w, a.Summary, a.Recommendations)
	if a.VideoURL != "" {
		fmt.Fprintf(w, "\nVideo: %s\n", a.VideoURL)
	}
	if len(a.Clips) > 0 || len(a.Snapshots) > 0 {
		fmt.Fprintf(w, "Media: %d clips, %d snapshots\n", len(a.Clips), len(a.Snapshots))
	}
}

func printMultiAnalysis(w io.Writer, a model.MultiAnalysis) {
	fmt.Fprintf(w, "Multi-angle analysis %s\n", a.ID)
	fmt.Fprintf(w, "Overall: %.0f/100 (%s)\n", a.OverallScore, rating(a.Rating))
	fmt.Fprintf(w, "Bowler:  %s, %s arm\n", a.BowlingStyle, a.BowlingArm)
	names := make([]string, 0, len(a.Angles))
	for _, ang := range a.Angles {
		names = append(names, ang.Name)
	}
	fmt.Fprintf(w, "Angles:  %s\n", strings.Join(names, ", "))
	printParameters(w, a.Parameters)
	printNotes(w, a.Summary, a.Recommendations)
}

func printParameters(w io.Writer, params []model.Parameter) {
	if len(params) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tVALUE\tIDEAL\tSCORE\tRATING")
	for _, p := range params {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%s\n", p.Name, value(p.Value, p.Unit), ideal(p), p.Score, rating(p.Rating))
	}
	_ = tw.Flush()
}

func printNotes(w io.Writer, summary string, recs []string) {
	if summary != "" {
		fmt.Fprintf(w, "\n%s\n", summary)
	}
	if len(recs) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range recs {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}

func printHistory(w io.Writer, list []model.Analysis) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No analyses yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSTYLE\tSTATUS\tSCORE\tRATING")
	for _, a := range list {
		date := "-"
		if !a.CreatedAt.IsZero() {
			date = a.CreatedAt.Local().Format(dateLayout)
		}
		score := "-"
		if a.Status == model.StatusCompleted {
			score = fmt.Sprintf("%.0f", a.OverallScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, date, a.BowlingStyle, a.Status, score, rating(a.Rating))
	}
	_ = tw.Flush()
}

func value(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

func ideal(p model.Parameter) string {
	switch {
	case p.IdealMin != nil && p.IdealMax != nil:
		return fmt.Sprintf("%.0f-%.0f", *p.IdealMin, *p.IdealMax)
	case p.IdealMin != nil:
		return fmt.Sprintf(">= %.0f", *p.IdealMin)
	case p.IdealMax != nil:
		return fmt.Sprintf("<= %.0f", *p.IdealMax)
	default:
		return "-"
	}
}

func rating(r model.Rating) string {
	if r == "" {
		return "-"
	}
	return strings.ReplaceAll(string(r), "_", " ")
}
