package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/pkg/utils/json"
)

// NewCmdChat creates the `relayctl chat` command.
func NewCmdChat(serverAddr, token *string) *cobra.Command {
	var agentID string
	var sessionID string
	var systemPrompt string
	var model string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive conversation against relayd",
		Long: heredoc.Doc(`
			Opens an interactive conversation. Without --agent a fresh agent
			is created first; tool proposals streamed back by the server can
			be approved or denied from the terminal.`),
		Example: heredoc.Doc(`
			# Chat with a fresh agent
			relayctl chat

			# Continue a conversation with an existing agent
			relayctl chat --agent agent-1234 --session chat-5678`),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewRelayClient(*serverAddr, *token, nil)
			return runChat(cmd.Context(), client, &chatOptions{
				agentID:      agentID,
				sessionID:    sessionID,
				systemPrompt: systemPrompt,
				model:        model,
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Existing agent id (created when empty).")
	cmd.Flags().StringVar(&sessionID, "session", "", "Chat session id (assigned when empty).")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "You are a helpful assistant.", "System prompt for a freshly created agent.")
	cmd.Flags().StringVar(&model, "model", "relay-local", "Model name for a freshly created agent.")

	return cmd
}

type chatOptions struct {
	agentID      string
	sessionID    string
	systemPrompt string
	model        string
}

var (
	promptColor   = color.New(color.FgGreen, color.Bold)
	replyColor    = color.New(color.FgCyan)
	planColor     = color.New(color.FgYellow, color.Faint)
	toolColor     = color.New(color.FgMagenta)
	errLineColor  = color.New(color.FgRed)
	approvalColor = color.New(color.FgYellow, color.Bold)
)

func runChat(ctx context.Context, client *RelayClient, opts *chatOptions) error {
	stdin := bufio.NewReader(os.Stdin)

	if opts.agentID == "" {
		result, err := client.ExecuteTask(ctx, &entity.TaskRequest{
			TaskID: "task-" + uuid.New().String()[:8],
			AgentConfig: &entity.AgentConfig{
				AgentType:    "chat",
				SystemPrompt: opts.systemPrompt,
				ModelConfig:  &entity.ModelConfig{Model: opts.model},
			},
			ChatSessionID: opts.sessionID,
		})
		if err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		if result.Status != entity.TaskSuccess {
			return fmt.Errorf("create agent: %s", result.ErrorMessage)
		}
		opts.agentID = result.AgentID
		opts.sessionID = result.SessionID
		fmt.Printf("agent %s ready (session %s)\n\n", opts.agentID, opts.sessionID)
	}

	for {
		promptColor.Print("you> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		taskID := "task-" + uuid.New().String()[:8]
		task := &entity.TaskRequest{
			TaskID:        taskID,
			AgentID:       opts.agentID,
			ChatSessionID: opts.sessionID,
			Messages:      []*entity.RequestMessage{{Role: entity.RoleUser, Content: line}},
			ExecutionContext: &entity.ExecutionContext{
				ExecutionMode: entity.ExecModeLive,
			},
		}

		err = client.ExecuteTaskStream(ctx, task, func(chunk *entity.StreamChunk) {
			printChunk(ctx, client, stdin, taskID, chunk)
		})
		if err != nil {
			errLineColor.Printf("stream error: %v\n", err)
		}
		fmt.Println()
	}
}

// printChunk renders one stream chunk and handles approval prompts.
func printChunk(ctx context.Context, client *RelayClient, stdin *bufio.Reader, taskID string, chunk *entity.StreamChunk) {
	switch chunk.Type {
	case entity.ChunkPlanDelta, entity.ChunkPlanSummary:
		planColor.Printf("[plan] %s\n", contentText(chunk.Content))

	case entity.ChunkToolProposal:
		toolColor.Printf("[tool] proposal %s\n", contentText(chunk.Content))
		if requires, _ := chunk.Metadata[entity.MetaRequiresApproval].(bool); requires {
			approvalColor.Printf("approve? [y/N] ")
			answer, _ := stdin.ReadString('\n')
			approved := strings.HasPrefix(strings.TrimSpace(strings.ToLower(answer)), "y")
			if err := client.Approve(ctx, taskID, chunk.InteractionID, approved); err != nil {
				errLineColor.Printf("approval failed: %v\n", err)
			}
		}

	case entity.ChunkToolResult:
		toolColor.Printf("[tool] result %s\n", contentText(chunk.Content))

	case entity.ChunkResponse:
		replyColor.Print(contentText(chunk.Content))
		if chunk.IsFinal {
			fmt.Println()
		}

	case entity.ChunkError:
		errLineColor.Printf("[error] %s\n", contentText(chunk.Content))
	}
}

func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	default:
		s, err := json.MarshalString(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return s
	}
}
