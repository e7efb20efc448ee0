package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"examprep/internal/question"
)

func main() {
	root := flag.String("root", "exams", "directory holding one folder per exam")
	strict := flag.Bool("strict", false, "exit non-zero when rows are skipped or images are missing")
	flag.Parse()

	code, err := run(context.Background(), os.Stdout, *root, *strict, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "examcheck: %v\n", err)
	}
	os.Exit(code)
}

// run prints the load report of every selected exam. Exit code 1 means at
// least one exam is unusable, 2 that strict mode found warnings.
func run(ctx context.Context, out io.Writer, root string, strict bool, only []string) (int, error) {
	svc := question.NewService(question.ServiceConfig{Root: root})

	exams := only
	if len(exams) == 0 {
		var err error
		exams, err = svc.ListExams(ctx)
		if err != nil {
			return 1, err
		}
	}
	if len(exams) == 0 {
		return 1, question.ErrNoExamsFound
	}

	failed, warned := false, false
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXAM\tSTATUS\tROWS\tLOADED\tSKIPPED\tMISSING IMAGES")
	var details []*question.LoadReport
	for _, id := range exams {
		rep, err := svc.Report(ctx, id)
		if err != nil {
			failed = true
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", id, statusOf(err))
			continue
		}
		status := "ok"
		if rep.LoadedRows == 0 {
			status = "empty"
			failed = true
		} else if rep.SkippedRows > 0 || len(rep.MissingImages) > 0 {
			status = "warn"
			warned = true
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", id, status, rep.TotalRows, rep.LoadedRows, rep.SkippedRows, len(rep.MissingImages))
		details = append(details, rep)
	}
	if err := tw.Flush(); err != nil {
		return 1, err
	}

	for _, rep := range details {
		if len(rep.Errors) == 0 && len(rep.MissingImages) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s (%s)\n", rep.ExamID, rep.Source)
		for _, re := range rep.Errors {
			fmt.Fprintf(out, "  row %d: %s\n", re.Row, re.Error)
		}
		for _, img := range rep.MissingImages {
			fmt.Fprintf(out, "  missing image: %s\n", img)
		}
	}

	switch {
	case failed:
		return 1, nil
	case strict && warned:
		return 2, nil
	default:
		return 0, nil
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, question.ErrExamDataMissing):
		return "missing"
	case errors.Is(err, question.ErrMalformedTable):
		return "malformed"
	case errors.Is(err, question.ErrInvalidExamID):
		return "invalid id"
	default:
		return "error"
	}
}
