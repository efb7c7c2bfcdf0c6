package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	dto "github.com/prometheus/client_model/go"

	"github.com/compozy/ordertx/engine/txexec"
)

const (
	formatAuto = "auto"
	formatText = "text"
	formatJSON = "json"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(18)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// resolveFormat maps "auto" to text on a terminal and JSON otherwise.
func resolveFormat(format string, out io.Writer) (string, error) {
	switch format {
	case formatText, formatJSON:
		return format, nil
	case formatAuto, "":
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			return formatText, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

type resultView struct {
	OperationID     string            `json:"operation_id"`
	Operation       string            `json:"operation"`
	Outcome         txexec.Outcome    `json:"outcome"`
	PartialRollback bool              `json:"partial_rollback"`
	DurationMS      int64             `json:"duration_ms"`
	Error           string            `json:"error,omitempty"`
	CleanupError    string            `json:"cleanup_error,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
}

func newResultView(res *txexec.Result, details map[string]string) resultView {
	v := resultView{
		OperationID:     res.OperationID,
		Operation:       res.Operation,
		Outcome:         res.Outcome,
		PartialRollback: res.PartialRollback,
		DurationMS:      res.Duration.Milliseconds(),
		Details:         details,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	if res.CleanupErr != nil {
		v.CleanupError = res.CleanupErr.Error()
	}
	return v
}

func writeResult(out io.Writer, format string, view resultView) error {
	if format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	outcome := okStyle.Render(string(view.Outcome))
	if view.Outcome != txexec.OutcomeCommitted {
		outcome = failStyle.Render(string(view.Outcome))
	}
	lines := []string{
		row("operation", view.Operation),
		row("operation id", mutedStyle.Render(view.OperationID)),
		row("outcome", outcome),
		row("partial rollback", fmt.Sprint(view.PartialRollback)),
		row("duration", fmt.Sprintf("%dms", view.DurationMS)),
	}
	keys := make([]string, 0, len(view.Details))
	for k := range view.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, row(k, view.Details[k]))
	}
	if view.Error != "" {
		lines = append(lines, row("error", failStyle.Render(view.Error)))
	}
	if view.CleanupError != "" {
		lines = append(lines, row("cleanup error", failStyle.Render(view.CleanupError)))
	}
	_, err := fmt.Fprintln(out, strings.Join(lines, "\n"))
	return err
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// writeMetrics prints the gathered ordertx counters and histogram counts.
func writeMetrics(out io.Writer, families []*dto.MetricFamily) error {
	lines := []string{headerStyle.Render("metrics")}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "ordertx_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprint(m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("count=%d sum=%.4fs", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			case m.GetGauge() != nil:
				value = fmt.Sprint(m.GetGauge().GetValue())
			default:
				continue
			}
			lines = append(lines, fmt.Sprintf("%s%s %s", mf.GetName(), renderLabels(m.GetLabel()), value))
		}
	}
	_, err := fmt.Fprintln(out, strings.Join(lines, "\n"))
	return err
}

func renderLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
