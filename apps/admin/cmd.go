package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/vitrine/apps"
	"github.com/trezcool/vitrine/core/page"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db    *sqlx.DB // nil unless pages are stored in a sql database
	pages page.Repository
	out   io.Writer

	isTerminal func() bool // whether out is a terminal
}

func newCommandLine(db *sqlx.DB, pages page.Repository) *commandLine {
	return &commandLine{
		db:         db,
		pages:      pages,
		out:        os.Stdout,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]           - run a goose command (up, down, status, version, ...) on the sql database")
	fmt.Fprintln(cli.out, "  export -page ID [-out FILE]      - write the stored document of a page as JSON")
	fmt.Fprintln(cli.out, "  validate [-page ID]              - check that stored pages (or one of them) are fit for display")
	fmt.Fprintln(cli.out, "  diff -page ID -file FILE         - compare the stored document of a page with an exported one")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportPage := exportCmd.String("page", "", "The id of the page to export.")
	exportOut := exportCmd.String("out", "", "The file to write to. Defaults to the standard output.")

	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validatePage := validateCmd.String("page", "", "The id of the page to check. All pages are checked when omitted.")

	diffCmd := flag.NewFlagSet("diff", flag.ExitOnError)
	diffPage := diffCmd.String("page", "", "The id of the stored page.")
	diffFile := diffCmd.String("file", "", "The exported document to compare with.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return apps.NewArgumentError("migrate: pages are not stored in a sql database")
		}
		return cli.migrate(ctx, args[2:])

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportPage == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(ctx, *exportPage, *exportOut)

	case "validate":
		if err := validateCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.validate(ctx, *validatePage)

	case "diff":
		if err := diffCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *diffPage == "" || *diffFile == "" {
			diffCmd.Usage()
			return errHelp
		}
		return cli.diff(ctx, *diffPage, *diffFile)

	default:
		cli.printUsage()
		return errHelp
	}
}
