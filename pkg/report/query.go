package report

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// guidPattern matches a full 8-4-4-4-12 GUID for exact id lookups.
var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// looseGUIDPattern matches GUID-shaped prefixes, enough to steer a search
// term away from display name matching.
var looseGUIDPattern = regexp.MustCompile(`^[0-9a-fA-F\-]{10,}$`)

// normalizeVisibility folds common lowercase inputs into the canonical
// casing stored in the mirror.
func normalizeVisibility(input string) string {
	switch strings.ToLower(input) {
	case "public":
		return "Public"
	case "private":
		return "Private"
	case "hiddenmembership":
		return "HiddenMembership"
	}
	return input
}

// buildWhere turns request parameters plus a report definition into a WHERE
// clause and its placeholder arguments. Every user-supplied value travels as
// a placeholder; only fixed definition fragments are inlined.
func buildWhere(def *Definition, params url.Values, now time.Time) (string, []any) {
	var parts []string
	var args []any

	if s := strings.TrimSpace(params.Get("search")); s != "" {
		expr, vals := searchClause(def, s)
		parts = append(parts, expr)
		args = append(args, vals...)
	}

	get := func(name string) (string, bool) {
		if v, ok := def.Enforce[name]; ok {
			return v, true
		}
		if v := params.Get(name); v != "" {
			return strings.TrimSpace(v), true
		}
		return "", false
	}

	for _, f := range def.Filters {
		v, ok := get(f.Param)
		if !ok {
			continue
		}
		switch f.Kind {
		case filterExact:
			parts = append(parts, f.Column+" = ?")
			args = append(args, v)
		case filterFold:
			if f.Param == "visibility" {
				v = normalizeVisibility(v)
			}
			parts = append(parts, "LOWER("+f.Column+") = LOWER(?)")
			args = append(args, v)
		case filterBool:
			n := 0
			if strings.EqualFold(v, "true") {
				n = 1
			}
			parts = append(parts, f.Column+" = ?")
			args = append(args, n)
		case filterLike:
			parts = append(parts, f.Column+" LIKE ?")
			args = append(args, "%"+v+"%")
		case filterCount:
			// Boolean-coerced count: present vs empty.
			if strings.EqualFold(v, "true") {
				parts = append(parts, f.Column+" > 0")
			} else if strings.EqualFold(v, "false") {
				parts = append(parts, f.Column+" = 0")
			}
		}
	}

	if def.MultiIn != nil {
		vals := params[def.MultiIn.Param]
		if len(vals) == 0 {
			vals = def.MultiIn.Default
		}
		if len(vals) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
			parts = append(parts, def.MultiIn.Column+" IN ("+placeholders+")")
			for _, v := range vals {
				args = append(args, v)
			}
		}
	}

	parts = append(parts, def.Conditions...)

	if def.RecentDays > 0 {
		threshold := now.UTC().AddDate(0, 0, -def.RecentDays).Format(time.RFC3339)
		parts = append(parts, "createdDateTime >= ?")
		args = append(args, threshold)
	}

	if len(parts) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// searchClause builds the free-text portion. GUID-shaped terms target the
// id column when the definition declares one; everything else fans out as
// LIKE across the declared search fields.
func searchClause(def *Definition, term string) (string, []any) {
	if def.IDColumn != "" {
		if def.IDExact && guidPattern.MatchString(term) {
			return def.IDColumn + " = ?", []any{term}
		}
		if !def.IDExact && looseGUIDPattern.MatchString(term) {
			return def.IDColumn + " LIKE ?", []any{"%" + term + "%"}
		}
	}

	conds := make([]string, len(def.Search))
	args := make([]any, len(def.Search))
	for i, field := range def.Search {
		conds[i] = field + " LIKE ?"
		args[i] = "%" + term + "%"
	}
	expr := strings.Join(conds, " OR ")
	if len(conds) > 1 {
		expr = "(" + expr + ")"
	}
	return expr, args
}
