package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/vitrine/core/block"
)

// errDiffers is returned by diff when the documents differ, after printing the diff.
var errDiffers = errors.New("documents differ")

func encodeDocument(doc block.Document, indent bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// export writes the stored document of a page as JSON to outPath, or to the output.
// Output to a file or a terminal is indented.
func (cli *commandLine) export(ctx context.Context, pageID, outPath string) error {
	doc, err := cli.pages.GetPage(ctx, pageID)
	if err != nil {
		return err
	}

	if outPath == "" {
		data, err := encodeDocument(doc, cli.isTerminal())
		if err != nil {
			return err
		}
		_, err = cli.out.Write(data)
		return err
	}

	data, err := encodeDocument(doc, true)
	if err != nil {
		return err
	}
	if err = os.WriteFile(outPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", outPath)
	}
	fmt.Fprintf(cli.out, "page %s exported to %s\n", doc.Slug, outPath)
	return nil
}

// validate loads stored pages (all of them when pageID is empty) and runs the publish checks on their blocks.
func (cli *commandLine) validate(ctx context.Context, pageID string) error {
	var docs []block.Document
	if pageID != "" {
		doc, err := cli.pages.GetPage(ctx, pageID)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	} else {
		var err error
		if docs, err = cli.pages.QueryPages(ctx); err != nil {
			return err
		}
	}

	invalid := 0
	for _, doc := range docs {
		var problems []string
		p, err := block.Deserialize(doc)
		if err != nil {
			if !errors.Is(err, block.ErrSerializationMismatch) {
				return err
			}
			problems = append(problems, err.Error())
		}
		for _, b := range p.Blocks {
			if err := block.Validate(b.Config); err != nil {
				problems = append(problems, fmt.Sprintf("block %s: %v", b.ID, err))
			}
		}

		if len(problems) == 0 {
			fmt.Fprintf(cli.out, "ok       %s (%s)\n", doc.Slug, doc.ID)
			continue
		}
		invalid++
		fmt.Fprintf(cli.out, "invalid  %s (%s)\n", doc.Slug, doc.ID)
		for _, problem := range problems {
			fmt.Fprintf(cli.out, "  - %s\n", problem)
		}
	}

	if invalid > 0 {
		return errors.Errorf("%d of %d page(s) invalid", invalid, len(docs))
	}
	return nil
}

// diff prints a unified diff between the stored document of a page and the one exported to path.
func (cli *commandLine) diff(ctx context.Context, pageID, path string) error {
	doc, err := cli.pages.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	stored, err := encodeDocument(doc, true)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	var other block.Document
	if err = json.Unmarshal(raw, &other); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	local, err := encodeDocument(other, true)
	if err != nil {
		return err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(stored)),
		B:        difflib.SplitLines(string(local)),
		FromFile: "stored/" + doc.ID,
		ToFile:   path,
		Context:  3,
	})
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(cli.out, "no differences")
		return nil
	}
	fmt.Fprint(cli.out, diff)
	return errDiffers
}
