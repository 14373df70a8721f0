package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// --- Styles ---

var (
	bold       = lipgloss.NewStyle().Bold(true)
	dim        = lipgloss.NewStyle().Faint(true)
	green      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	red        = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderStatus 以终端友好的方式输出 get_security_status 的响应信封
func renderStatus(w io.Writer, env map[string]any) error {
	if ok, _ := env["success"].(bool); !ok {
		msg, _ := env["error"].(string)
		fmt.Fprintln(w, red.Render("✗ "+msg))
		return errors.New(msg)
	}
	result, _ := env["result"].(map[string]any)
	if result == nil {
		return errors.New("status response has no result")
	}

	fmt.Fprintln(w, bold.Render("🛡  VisionMCP security status"))
	if id, _ := env["request_id"].(string); id != "" {
		fmt.Fprintln(w, dim.Render("   request "+id))
	}
	fmt.Fprintln(w)

	limiter := section(result, "rate_limiter")
	scanners := section(result, "scanners")
	fmt.Fprintln(w, boxStyle.Render(strings.Join([]string{
		kv("Rate limiter", fmt.Sprintf("%s store, %s requests / %ss, %s identifiers",
			str(limiter["store"]), str(limiter["max_requests"]), str(limiter["window_seconds"]), str(limiter["tracked_identifiers"]))),
		kv("Injection", fmt.Sprintf("%s patterns", str(scanners["injection_patterns"]))),
		kv("PII", fmt.Sprintf("%s (%s)", flag(scanners["pii_enabled"]), str(scanners["pii_action"]))),
		kv("Tool timeout", str(result["tool_timeout"])),
	}, "\n")))
	fmt.Fprintln(w)

	fmt.Fprintln(w, labelStyle.Render("Security config"))
	fmt.Fprintln(w, keyValueTable(section(result, "security_config")).Render())
	fmt.Fprintln(w)

	collaborators := section(result, "collaborators")
	if len(collaborators) > 0 {
		var rows [][]string
		for _, k := range sortedKeys(collaborators) {
			c, _ := collaborators[k].(map[string]any)
			rows = append(rows, []string{k, str(c["name"]), flag(c["configured"])})
		}
		fmt.Fprintln(w, labelStyle.Render("Collaborators"))
		fmt.Fprintln(w, styledTable("Role", "Name", "Configured").Rows(rows...).Render())
		fmt.Fprintln(w)
	}

	auditSummary := section(result, "audit")
	fmt.Fprintln(w, labelStyle.Render("Audit log"))
	fmt.Fprintf(w, "   %s / %s entries, %s total, %s failures, %s evicted\n",
		str(auditSummary["len"]), str(auditSummary["capacity"]), str(auditSummary["total"]),
		str(auditSummary["failures"]), str(auditSummary["evicted"]))

	recent, _ := auditSummary["recent_entries"].([]any)
	if len(recent) > 0 {
		var rows [][]string
		for _, raw := range recent {
			e, _ := raw.(map[string]any)
			rows = append(rows, []string{str(e["timestamp"]), str(e["tool"]), flag(e["success"]), str(e["identifier"]), str(e["error"])})
		}
		fmt.Fprintln(w, styledTable("Time", "Tool", "OK", "Identifier", "Error").Rows(rows...).Render())
	}
	return nil
}

func styledTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
			}
			return lipgloss.NewStyle()
		})
}

func keyValueTable(m map[string]any) *table.Table {
	var rows [][]string
	for _, k := range sortedKeys(m) {
		rows = append(rows, []string{k, str(m[k])})
	}
	return styledTable("Setting", "Value").Rows(rows...)
}

func kv(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-13s", label)) + " " + value
}

func section(m map[string]any, key string) map[string]any {
	s, _ := m[key].(map[string]any)
	if s == nil {
		return map[string]any{}
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flag(v any) string {
	if b, _ := v.(bool); b {
		return green.Render("yes")
	}
	return red.Render("no")
}

// str 渲染 JSON 解码后的标量；整数值的 float64 去掉小数部分
func str(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = str(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
