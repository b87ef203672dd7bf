package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/config"
	"codeberg.org/graphmirror/graphmirror/pkg/report"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
	"codeberg.org/graphmirror/graphmirror/pkg/sync"
)

// resourceTables maps URL resource segments onto mirror tables for full
// exports.
var resourceTables = map[string]string{
	"users":  "users",
	"groups": "groups",
	"teams":  "teams",
}

// exportRequest is the body of download/email report requests. When Data is
// empty the whole mirror table is exported.
type exportRequest struct {
	Recipient string           `json:"recipient,omitempty"`
	Data      []map[string]any `json:"data,omitempty"`
}

func SetupRoutes(mux *http.ServeMux, ctx context.Context, st *store.Store, syncer *sync.Syncer, runner *report.Runner, mailer *report.Mailer, exportCfg config.ExportConfig, logger *zap.Logger) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/sync/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		tokens, err := st.DeltaTokens(r.Context())
		if err != nil {
			logger.Error("Failed to load delta tokens", zap.Error(err))
			http.Error(w, "Store error", http.StatusInternalServerError)
			return
		}

		logs, err := st.SyncLogs(r.Context(), 20)
		if err != nil {
			logger.Error("Failed to load sync logs", zap.Error(err))
			http.Error(w, "Store error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, map[string]any{
			"checkpoints": tokens,
			"recentRuns":  logs,
			"lastResults": syncer.LastResults(),
		})
	})

	mux.HandleFunc("/sync/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resource := strings.TrimPrefix(r.URL.Path, "/sync/")
		if resource == "" || strings.Contains(resource, "/") {
			http.Error(w, "Sync resource required", http.StatusBadRequest)
			return
		}

		logger.Info("Manual sync requested",
			zap.String("resource", resource),
			zap.String("remote_addr", r.RemoteAddr))

		result, err := syncer.SyncResource(ctx, resource)
		if err != nil {
			logger.Error("Manual sync failed",
				zap.String("resource", resource),
				zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"error": fmt.Sprintf("Sync failed: %v", err),
			})
			return
		}

		writeJSON(w, logger, map[string]any{
			"resource": resource,
			"added":    result.Added,
			"updated":  result.Updated,
			"deleted":  result.Deleted,
		})
	})

	mux.HandleFunc("/report/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/report/")
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			http.Error(w, "Report path must be /report/{resource}/{name}", http.StatusBadRequest)
			return
		}
		resource, name := parts[0], parts[1]

		switch name {
		case "download":
			handleDownload(w, r, runner, exportCfg, resource, logger)
			return
		case "email":
			handleEmail(w, r, runner, mailer, resource, logger)
			return
		}

		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		def, err := report.Lookup(resource, name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		page, err := runner.Run(r.Context(), def, r.URL.Query())
		if err != nil {
			logger.Error("Report query failed",
				zap.String("resource", resource),
				zap.String("report", name),
				zap.Error(err))
			http.Error(w, "Query failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, page)
	})
}

func handleDownload(w http.ResponseWriter, r *http.Request, runner *report.Runner, exportCfg config.ExportConfig, resource string, logger *zap.Logger) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, base, err := exportRecords(r, runner, resource)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("format") == "xlsx" {
		filename := base + ".xlsx"
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if err := report.ExportExcel(w, nil, records); err != nil {
			logger.Error("Excel export failed", zap.String("resource", resource), zap.Error(err))
		}
		return
	}

	path, err := report.ExportCSVFile(exportCfg.Dir, nil, records, base)
	if err != nil {
		logger.Error("CSV export failed", zap.String("resource", resource), zap.Error(err))
		http.Error(w, "Error generating CSV file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func handleEmail(w http.ResponseWriter, r *http.Request, runner *report.Runner, mailer *report.Mailer, resource string, logger *zap.Logger) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Recipient == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "Recipient email is required.",
		})
		return
	}

	records := req.Data
	base := fmt.Sprintf("all_%s_report", resource)
	if len(records) == 0 {
		table, ok := resourceTables[resource]
		if !ok {
			http.Error(w, "Unknown report resource", http.StatusBadRequest)
			return
		}
		var err error
		records, err = runner.Dump(r.Context(), table)
		if err != nil {
			logger.Error("Report export failed", zap.String("resource", resource), zap.Error(err))
			http.Error(w, "Store error", http.StatusInternalServerError)
			return
		}
	}
	if len(records) == 0 {
		http.Error(w, "No data available to export", http.StatusBadRequest)
		return
	}

	content, filename, err := report.ExportCSVString(nil, records, base)
	if err != nil {
		http.Error(w, "Error generating CSV", http.StatusInternalServerError)
		return
	}

	if err := mailer.SendReport(req.Recipient, base, filename, content); err != nil {
		logger.Error("Report email failed",
			zap.String("resource", resource),
			zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "Failed to send report",
		})
		return
	}

	writeJSON(w, logger, map[string]string{
		"status":  "success",
		"message": "Report sent successfully!",
	})
}

// exportRecords resolves the rows for a download: the request body's data
// when present, the full mirror table otherwise.
func exportRecords(r *http.Request, runner *report.Runner, resource string) ([]map[string]any, string, error) {
	base := fmt.Sprintf("all_%s_report", resource)

	var req exportRequest
	if r.Body != nil {
		// An empty or absent body means a full table export.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if len(req.Data) > 0 {
		return req.Data, base, nil
	}

	table, ok := resourceTables[resource]
	if !ok {
		return nil, "", fmt.Errorf("unknown report resource %q", resource)
	}
	records, err := runner.Dump(r.Context(), table)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("no data available to export")
	}
	return records, base, nil
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
