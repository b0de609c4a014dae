// inspect.go implements "sdqctl inspect": parse a workflow and show what
// the engine would execute, without touching any backend.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <workflow.sdq>",
	Short: "Show the parsed form of a workflow file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var serializeFlag bool

func init() {
	inspectCmd.Flags().BoolVar(&serializeFlag, "serialize", false, "Print the round-tripped directive text instead of the summary")
}

func runInspect(cmd *cobra.Command, args []string) error {
	doc, err := workflow.ParseFile(args[0])
	if err != nil {
		return err
	}
	if serializeFlag {
		fmt.Print(doc.Serialize())
		return nil
	}
	printDocument(os.Stdout, doc)
	return nil
}

// printDocument writes the human summary of a parsed workflow. Shared
// with "run --dry-run".
func printDocument(w io.Writer, doc *workflow.Document) {
	fmt.Fprintf(w, "Workflow: %s\n", doc.Source)
	writeField(w, "Adapter", doc.Adapter)
	writeField(w, "Model", doc.Model)
	writeField(w, "Mode", string(doc.Mode))
	if doc.MaxCycles > 0 {
		fmt.Fprintf(w, "  Max cycles:   %d\n", doc.MaxCycles)
	}
	if doc.ContextLimitPercent > 0 {
		fmt.Fprintf(w, "  Context limit: %d%% (%s)\n", doc.ContextLimitPercent, orDefault(string(doc.OnContextLimit), "compact"))
	}
	writeField(w, "Working dir", doc.WorkingDir)
	if len(doc.ContextPatterns) > 0 {
		fmt.Fprintf(w, "  Context:      %s\n", strings.Join(doc.ContextPatterns, ", "))
	}
	if !doc.Restrictions.Empty() {
		fmt.Fprintf(w, "  Restrictions: allow %d deny %d patterns\n",
			len(doc.Restrictions.AllowFiles)+len(doc.Restrictions.AllowDirs),
			len(doc.Restrictions.DenyFiles)+len(doc.Restrictions.DenyDirs))
	}
	writeField(w, "Output", string(doc.OutputFormat))
	writeField(w, "Output file", doc.OutputFile)

	fmt.Fprintf(w, "\nSteps (%d):\n", len(doc.Steps))
	for i, step := range doc.Steps {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, describeStep(step))
	}

	if len(doc.Unknown) > 0 {
		fmt.Fprintf(w, "\nUnknown directives (ignored):\n")
		for _, u := range doc.Unknown {
			fmt.Fprintf(w, "  line %d: %s %s\n", u.Line, u.Keyword, u.Value)
		}
	}
}

func describeStep(step workflow.Step) string {
	switch s := step.(type) {
	case workflow.PromptStep:
		return "PROMPT " + firstLine(s.Text, 60)
	case workflow.RunStep:
		desc := "RUN " + firstLine(s.Spec.Command, 60)
		if s.Spec.OnError != "" {
			desc += fmt.Sprintf(" (on-error %s)", s.Spec.OnError)
		}
		return desc
	case workflow.CheckpointStep:
		return strings.TrimSpace("CHECKPOINT " + s.Name)
	case workflow.CompactStep:
		return strings.TrimSpace("COMPACT " + strings.Join(s.Preserve, ", "))
	case workflow.PauseStep:
		return strings.TrimSpace("PAUSE " + firstLine(s.Message, 60))
	case workflow.NewConversationStep:
		return "NEW-CONVERSATION"
	default:
		return fmt.Sprintf("%T", step)
	}
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func writeField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %-13s %s\n", label+":", value)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
