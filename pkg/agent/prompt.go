package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/idris/kestrel/pkg/tools"
)

const systemPromptHeader = `You are an automation agent. Work toward the user's goal step by step.

Respond with exactly one JSON object per turn, optionally inside a code fence. Two forms are accepted:

To invoke a tool:
{"thought": "<why this tool>", "tool": "<tool name>", "params": {<parameters>}}

To finish with an answer:
{"thought": "<summary of reasoning>", "answer": "<final answer>"}

Invoke only the tools listed below. Tool results arrive in the next turn inside a [tool_result] block.`

// buildSystemPrompt renders the instruction header plus the schemas
// advertised for this run.
func buildSystemPrompt(schemas []tools.Schema) string {
	var sb strings.Builder
	sb.WriteString(systemPromptHeader)

	if len(schemas) == 0 {
		sb.WriteString("\n\nNo tools are available for this run; answer directly.")
		return sb.String()
	}

	sb.WriteString("\n\nAvailable tools:\n")
	for _, schema := range schemas {
		data, err := json.Marshal(schema)
		if err != nil {
			continue
		}
		sb.WriteString(string(data))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Delimited turns keep tool output, errors and system notices visually
// fenced off from the rest of the conversation so the model cannot mistake
// injected content for instructions.

func toolResultTurn(tool, observation string) string {
	return fmt.Sprintf("[tool_result:%s]\n%s\n[/tool_result]", tool, observation)
}

func toolErrorTurn(msg string) string {
	return fmt.Sprintf("[tool_error]\n%s\n[/tool_error]", msg)
}

func declinedTurn(tool string) string {
	return fmt.Sprintf("[confirmation_declined]\ntool %q was not executed: the user declined. Choose another approach or finish with an answer.\n[/confirmation_declined]", tool)
}
