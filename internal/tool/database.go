package tool

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// DatabaseSettings configures the database_query tool.
type DatabaseSettings struct {
	AllowedVerbs  []string `json:"allowedVerbs,omitempty"`
	AllowedTables []string `json:"allowedTables,omitempty"`
	Timeout       int      `json:"timeout,omitempty"`
}

// tableRefs matches identifiers referenced after FROM/JOIN/INTO/UPDATE so
// the table allow-list can be enforced before execution.
var tableRefs = regexp.MustCompile(`(?i)\b(?:from|join|into|update)\s+["'` + "`" + `]?([A-Za-z_][A-Za-z0-9_]*)`)

func buildDatabaseQuery(cfg Config, deps Deps) (Definition, error) {
	var settings DatabaseSettings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return Definition{}, err
	}
	if deps.DB == nil {
		return Definition{}, fmt.Errorf("database_query tool requires a configured database")
	}

	verbs := settings.AllowedVerbs
	if len(verbs) == 0 {
		verbs = []string{"SELECT"}
	}
	for i, v := range verbs {
		verbs[i] = strings.ToUpper(v)
	}

	description := "Run a SQL query. Allowed statements: " + strings.Join(verbs, ", ") + "."
	if len(settings.AllowedTables) > 0 {
		description += " Allowed tables: " + strings.Join(settings.AllowedTables, ", ") + "."
	}

	return Definition{
		Name:        "database_query",
		Description: description,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The SQL statement to execute.",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return executeDatabaseQuery(ctx, settings, verbs, deps, args)
		},
	}, nil
}

func executeDatabaseQuery(ctx context.Context, settings DatabaseSettings, verbs []string, deps Deps, args map[string]any) (any, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return errorResult("query argument is required"), nil
	}

	// Constraint checks run before the statement touches the database.
	fields := strings.Fields(query)
	verb := strings.ToUpper(fields[0])
	if !slices.Contains(verbs, verb) {
		return errorResult("%s statements are not allowed, use one of: %s", verb, strings.Join(verbs, ", ")), nil
	}
	if len(settings.AllowedTables) > 0 {
		for _, match := range tableRefs.FindAllStringSubmatch(query, -1) {
			table := match[1]
			if !containsFold(settings.AllowedTables, table) {
				return errorResult("table %q is not allowed, use one of: %s", table, strings.Join(settings.AllowedTables, ", ")), nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, settingsTimeout(settings.Timeout))
	defer cancel()

	if verb != "SELECT" {
		res, err := deps.DB.ExecContext(ctx, query)
		if err != nil {
			return errorResult("statement failed: %v", err), nil
		}
		affected, _ := res.RowsAffected()
		return map[string]any{"rowsAffected": affected}, nil
	}

	rows, err := deps.DB.QueryContext(ctx, query)
	if err != nil {
		return errorResult("query failed: %v", err), nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return errorResult("failed to read columns: %v", err), nil
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return errorResult("failed to scan row: %v", err), nil
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return errorResult("row iteration failed: %v", err), nil
	}

	return map[string]any{"rows": results, "count": len(results)}, nil
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
