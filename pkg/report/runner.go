package report

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

// pageSize is the fixed number of records per report page.
const pageSize = 20

// Page is one page of report output.
type Page struct {
	Page         int              `json:"page"`
	TotalPages   int              `json:"totalPages"`
	TotalRecords int              `json:"totalRecords"`
	Records      []map[string]any `json:"records"`
}

// Runner executes report definitions against the mirror store.
type Runner struct {
	store  *store.Store
	logger *zap.Logger
}

func NewRunner(st *store.Store, logger *zap.Logger) *Runner {
	return &Runner{store: st, logger: logger}
}

// Run executes a report. The page parameter is a 1-based page number, or the
// literal "all" for an unpaginated full result set.
func (r *Runner) Run(ctx context.Context, def *Definition, params url.Values) (*Page, error) {
	fullExport := params.Get("page") == "all"
	page := 1
	if !fullExport {
		if n, err := strconv.Atoi(params.Get("page")); err == nil && n > 0 {
			page = n
		}
	}

	where, args := buildWhere(def, params, time.Now())

	selectSQL := "SELECT " + strings.Join(def.Columns, ", ") + " FROM " + def.Base
	countSQL := "SELECT COUNT(*) FROM " + def.Base
	if where != "" {
		selectSQL += " " + where
		countSQL += " " + where
	}

	selectArgs := args
	if !fullExport {
		clause, pageArgs := r.store.PageClause(pageSize, (page-1)*pageSize)
		selectSQL += " " + clause
		selectArgs = append(append([]any{}, args...), pageArgs...)
	}

	records, err := r.store.QueryMaps(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("report %s/%s: %w", def.Resource, def.Name, err)
	}

	total, err := r.store.QueryCount(ctx, countSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("report %s/%s count: %w", def.Resource, def.Name, err)
	}

	coerceBools(records, def.BoolCols)

	totalPages := 1
	if !fullExport {
		totalPages = (total + pageSize - 1) / pageSize
	}

	r.logger.Debug("report executed",
		zap.String("resource", def.Resource),
		zap.String("report", def.Name),
		zap.Int("records", len(records)),
		zap.Int("total", total))

	return &Page{
		Page:         page,
		TotalPages:   totalPages,
		TotalRecords: total,
		Records:      records,
	}, nil
}

// dumpTables guards Dump against arbitrary table names.
var dumpTables = map[string]bool{
	"users":  true,
	"groups": true,
	"teams":  true,
}

// Dump returns every row of a mirror table, for full CSV exports.
func (r *Runner) Dump(ctx context.Context, table string) ([]map[string]any, error) {
	if !dumpTables[table] {
		return nil, fmt.Errorf("unknown export table %q", table)
	}
	records, err := r.store.QueryMaps(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", table, err)
	}
	switch table {
	case "groups":
		coerceBools(records, []string{"securityEnabled", "mailEnabled"})
	case "teams":
		coerceBools(records, []string{"isArchived"})
	}
	return records, nil
}

// coerceBools rewrites 0/1 stored values into real booleans in place.
func coerceBools(records []map[string]any, cols []string) {
	for _, rec := range records {
		for _, col := range cols {
			v, ok := rec[col]
			if !ok || v == nil {
				continue
			}
			switch n := v.(type) {
			case int64:
				rec[col] = n != 0
			case int:
				rec[col] = n != 0
			case float64:
				rec[col] = n != 0
			case string:
				rec[col] = n == "1" || strings.EqualFold(n, "true")
			}
		}
	}
}
