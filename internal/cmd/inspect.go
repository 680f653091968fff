package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/ihmm/internal/store"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <model>",
	Short: "Summarize a saved model",
	Long: `Print the state count, concentrations, beta weights, per-state
occupancy and the most frequently emitted symbols of every state.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectJSON bool // Output as JSON
	inspectTop  int  // Symbols listed per state
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output the summary as JSON")
	inspectCmd.Flags().IntVar(&inspectTop, "top", 3, "Number of emitted symbols listed per state")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	if inspectTop < 0 {
		return fmt.Errorf("invalid --top %d: must not be negative", inspectTop)
	}
	st, err := store.Load(afero.NewOsFs(), args[0])
	if err != nil {
		return err
	}
	summary := summarize(st, inspectTop)
	if inspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	renderSummary(cmd.OutOrStdout(), summary)
	return nil
}

// modelSummary is the inspect report of a snapshot.
type modelSummary struct {
	Meta      store.Meta     `json:"meta"`
	Alphabet  string         `json:"alphabet"`
	Sequences int            `json:"sequences"`
	Positions int            `json:"positions"`
	States    int            `json:"states"`
	Alpha     float64        `json:"alpha"`
	Gamma     float64        `json:"gamma"`
	Residual  float64        `json:"residual"`
	Detail    []stateSummary `json:"state_detail"`
}

type stateSummary struct {
	State     int            `json:"state"`
	Beta      float64        `json:"beta"`
	Occupancy int            `json:"occupancy"`
	Top       []symbolWeight `json:"top_symbols"`
}

type symbolWeight struct {
	Symbol   string  `json:"symbol"`
	Fraction float64 `json:"fraction"`
}

func summarize(st *store.State, top int) modelSummary {
	m, c := st.Model, st.Corpus
	s := modelSummary{
		Meta:      st.Meta,
		Alphabet:  c.Alphabet.Name,
		Sequences: c.Len(),
		Positions: c.TotalLength(),
		States:    m.K,
		Alpha:     m.Alpha,
		Gamma:     m.Gamma,
		Residual:  m.Residual(),
		Detail:    make([]stateSummary, m.K),
	}

	occ := m.Counts.Occupancy()
	for k := 0; k < m.K; k++ {
		row := m.Counts.Emit.Row(k)
		syms := make([]int, len(row))
		for i := range syms {
			syms[i] = i
		}
		sort.SliceStable(syms, func(a, b int) bool { return row[syms[a]] > row[syms[b]] })

		ss := stateSummary{State: k, Beta: m.Beta[k], Occupancy: occ[k]}
		for _, sym := range syms[:max(0, min(top, len(syms)))] {
			if row[sym] == 0 || occ[k] == 0 {
				break
			}
			ss.Top = append(ss.Top, symbolWeight{
				Symbol:   string(c.Alphabet.Decode(uint8(sym))),
				Fraction: float64(row[sym]) / float64(occ[k]),
			})
		}
		s.Detail[k] = ss
	}
	sort.SliceStable(s.Detail, func(a, b int) bool { return s.Detail[a].Occupancy > s.Detail[b].Occupancy })
	return s
}

var (
	inspectTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	inspectLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	inspectHeader = lipgloss.NewStyle().Bold(true).Underline(true)
	inspectCell   = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
	inspectSyms   = lipgloss.NewStyle().PaddingLeft(2)
)

func renderSummary(w io.Writer, s modelSummary) {
	fmt.Fprintln(w, inspectTitle.Render("ihmm model"))
	field := func(label, value string) {
		fmt.Fprintln(w, inspectLabel.Render(label)+value)
	}
	if s.Meta.RunID != "" {
		field("run", s.Meta.RunID)
	}
	field("iterations", fmt.Sprintf("%d", s.Meta.Iterations))
	field("seed", fmt.Sprintf("%d", s.Meta.Seed))
	field("alphabet", s.Alphabet)
	field("sequences", fmt.Sprintf("%d (%d positions)", s.Sequences, s.Positions))
	field("states", fmt.Sprintf("%d", s.States))
	field("alpha", fmt.Sprintf("%.4g", s.Alpha))
	field("gamma", fmt.Sprintf("%.4g", s.Gamma))
	field("residual", fmt.Sprintf("%.4g", s.Residual))
	fmt.Fprintln(w)

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		inspectCell.Render("state"),
		inspectCell.Render("beta"),
		inspectCell.Render("occupancy"),
		inspectSyms.Render("top symbols"),
	)
	fmt.Fprintln(w, inspectHeader.Render(header))
	for _, d := range s.Detail {
		parts := make([]string, len(d.Top))
		for i, sw := range d.Top {
			parts[i] = fmt.Sprintf("%s %.2f", sw.Symbol, sw.Fraction)
		}
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
			inspectCell.Render(fmt.Sprintf("%d", d.State)),
			inspectCell.Render(fmt.Sprintf("%.4f", d.Beta)),
			inspectCell.Render(fmt.Sprintf("%d", d.Occupancy)),
			inspectSyms.Render(strings.Join(parts, "  ")),
		))
	}
}
