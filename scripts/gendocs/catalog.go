package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/unitdesign/internal/catalog"
	"github.com/leapstack-labs/unitdesign/internal/cli/output"
)

// generateCatalogDocs writes one page per built-in unit process and an
// index.
func generateCatalogDocs(outDir string) error {
	log.Printf("Generating catalog docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	c, err := catalog.Builtin()
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}
	entries := c.Entries()

	if err := generateCatalogIndex(entries, outDir); err != nil {
		return fmt.Errorf("failed to generate index: %w", err)
	}
	log.Printf("  Generated index.md")

	for _, e := range entries {
		if err := generateUnitProcessPage(e.Describe(), outDir); err != nil {
			return fmt.Errorf("failed to generate page for %s: %w", e.TypeName, err)
		}
		log.Printf("  Generated %s.md", e.TypeName)
	}
	return nil
}

func generateCatalogIndex(entries []catalog.Entry, outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Unit Process Catalog", "Built-in unit process types")
	w.GeneratedMarker()

	w.Header(1, "Unit Process Catalog")
	w.Paragraph("These unit process types are built in. Definitions in the catalog directory are added alongside them.")

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		s := e.Summarize()
		link := fmt.Sprintf("[%s](/catalog/%s)", InlineCode(s.Type), s.Type)
		rows = append(rows, []string{link, strings.Join(s.Inputs, ", "), strconv.Itoa(s.Rules), cleanDescription(s.Description)})
	}
	w.Table([]string{"Type", "Inputs", "Rules", "Description"}, rows)

	return os.WriteFile(filepath.Join(outDir, "index.md"), w.Bytes(), 0600)
}

func generateUnitProcessPage(d catalog.Detail, outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter(d.Type, d.Description)
	w.GeneratedMarker()

	w.Header(1, d.Type)
	if d.Description != "" {
		w.Paragraph(d.Description)
	}

	w.Header(2, "Usage")
	var inputs []string
	for _, q := range d.Quantities {
		if q.DerivedBy == "" && q.Default == nil {
			inputs = append(inputs, q.Name+"=...")
		}
	}
	w.CodeBlock("bash", strings.TrimSpace("unitdesign resolve "+d.Type+" "+strings.Join(inputs, " ")))

	w.Header(2, "Quantities")
	rows := make([][]string, 0, len(d.Quantities))
	for _, q := range d.Quantities {
		def := "-"
		if q.Default != nil {
			def = output.FormatNumber(*q.Default)
		}
		derived := "input"
		if q.DerivedBy != "" {
			derived = InlineCode(q.DerivedBy)
		}
		rows = append(rows, []string{
			InlineCode(q.Name),
			q.Unit,
			boundsText(q.Lower, q.Upper),
			def,
			derived,
			cleanDescription(q.Description),
		})
	}
	w.Table([]string{"Quantity", "Unit", "Bounds", "Default", "Derived by", "Description"}, rows)

	w.Header(2, "Resolution Order")
	for _, g := range d.Groups {
		title := fmt.Sprintf("Group %d", g.Index)
		if g.Cyclic {
			title += " (iterated)"
		}
		w.Header(3, title)
		items := make([]string, 0, len(g.Rules))
		for _, r := range g.Rules {
			item := fmt.Sprintf("%s: %s from %s", InlineCode(r.Name), InlineCode(r.Output), strings.Join(r.Inputs, ", "))
			if r.Description != "" {
				item += " (" + r.Description + ")"
			}
			items = append(items, item)
		}
		w.BulletList(items)
	}

	return os.WriteFile(filepath.Join(outDir, d.Type+".md"), w.Bytes(), 0600)
}

func boundsText(lower, upper *float64) string {
	switch {
	case lower == nil && upper == nil:
		return "-"
	case upper == nil:
		return "≥ " + output.FormatNumber(*lower)
	case lower == nil:
		return "≤ " + output.FormatNumber(*upper)
	}
	return output.FormatNumber(*lower) + " to " + output.FormatNumber(*upper)
}
