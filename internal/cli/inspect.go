package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/netcut/pkg/cache"
)

var (
	listDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
	listNodeStyle = lipgloss.NewStyle().Foreground(colorWhite)
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var paths inputPaths
	var flags rewriteFlags

	cmd := &cobra.Command{
		Use:   "inspect [graph.json]",
		Short: "Browse the partitions of a graph interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths.graph = args[0]
			rw := c.config.Rewrite
			flags.apply(cmd.Flags(), &rw)
			t, err := c.newTransformer(rw, cache.NewNullCache())
			if err != nil {
				return err
			}
			plan, err := c.planFile(cmd.Context(), t, paths)
			if err != nil {
				return err
			}
			report := newPlanReport(paths.graph, plan)
			if len(report.Partitions) == 0 {
				printInfo("No supported partitions in %s", paths.graph)
				return nil
			}

			p := tea.NewProgram(newInspectModel(report), tea.WithContext(cmd.Context()), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&paths.weights, "weights", "", "weights file (default: <graph>.weights.json)")
	cmd.Flags().StringVar(&paths.hints, "hints", "", "shape hints file (default: <graph>.hints.json)")
	flags.register(cmd.Flags())

	return cmd
}

// =============================================================================
// inspectModel - Interactive partition browser
// =============================================================================

// inspectModel is the bubbletea model for browsing a plan. Enter expands
// the selected partition into its nodes.
type inspectModel struct {
	report   planReport
	cursor   int
	offset   int
	height   int
	expanded bool
}

func newInspectModel(r planReport) inspectModel {
	return inspectModel{report: r, height: 10}
}

func (m inspectModel) Init() tea.Cmd {
	return nil
}

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	n := len(m.report.Partitions)
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.offset {
					m.offset = m.cursor
				}
			}
		case "down", "j":
			if m.cursor < n-1 {
				m.cursor++
				if m.cursor >= m.offset+m.height {
					m.offset = m.cursor - m.height + 1
				}
			}
		case "enter", " ":
			m.expanded = !m.expanded
		}
	case tea.WindowSizeMsg:
		// Leave room for the title, help, summary and expanded nodes.
		m.height = max(3, msg.Height/2-4)
		if m.cursor >= m.offset+m.height {
			m.offset = m.cursor - m.height + 1
		}
	}
	return m, nil
}

func (m inspectModel) View() string {
	var b strings.Builder
	r := m.report

	b.WriteString(StyleTitle.Render(r.Graph))
	b.WriteString(" ")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("%d nodes · %d converted · %d kept", r.Nodes, r.Converted, r.Kept)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ expand  q quit"))
	b.WriteString("\n\n")

	end := min(m.offset+m.height, len(r.Partitions))
	b.WriteString(partitionTable(r.Partitions[m.offset:end], m.cursor-m.offset).Render())
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.cursor+1, len(r.Partitions))))
	b.WriteString("\n")

	if m.expanded && r.plan != nil {
		p := r.plan.Partitions[m.cursor]
		b.WriteString("\n")
		for _, i := range p.Nodes {
			n := r.plan.Graph.Nodes[i]
			b.WriteString("  ")
			b.WriteString(StyleHighlight.Render(fmt.Sprintf("%-20s", n.Type)))
			b.WriteString(listNodeStyle.Render(n.Name))
			b.WriteString(listDimStyle.Render(fmt.Sprintf("  %s → %s", strings.Join(n.Inputs, ", "), strings.Join(n.Outputs, ", "))))
			b.WriteString("\n")
		}
	}

	return b.String()
}
