package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danielpatrickdp/scenegen/internal/records"
)

// #region input

// expand resolves glob patterns to a sorted, de-duplicated file list. A
// pattern without metacharacters must name an existing file.
func expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input matches %q", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// readDescriptions loads descriptions from JSONL files, or from CSV files
// with "id" and "description" columns.
func readDescriptions(patterns []string) ([]records.Description, error) {
	files, err := expand(patterns)
	if err != nil {
		return nil, err
	}
	var out []records.Description
	for _, f := range files {
		var ds []records.Description
		if strings.EqualFold(filepath.Ext(f), ".csv") {
			ds, err = readCSV(f)
		} else {
			ds, err = records.ReadFile[records.Description](f)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}

func readCSV(path string) ([]records.Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: header: %w", path, err)
	}
	idCol, descCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idCol = i
		case "description", "prompt":
			descCol = i
		}
	}
	if descCol < 0 {
		return nil, fmt.Errorf("%s: no description column", path)
	}

	var out []records.Description
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		d := records.Description{ID: len(out), Description: row[descCol]}
		if idCol >= 0 {
			if d.ID, err = strconv.Atoi(strings.TrimSpace(row[idCol])); err != nil {
				return nil, fmt.Errorf("%s:%d: id: %w", path, line, err)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// #endregion input
