package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dominds/minddrive/internal/bus"
	"github.com/dominds/minddrive/internal/config"
	"github.com/dominds/minddrive/internal/dialog"
	"github.com/dominds/minddrive/internal/driver"
	"github.com/dominds/minddrive/internal/minds"
	"github.com/dominds/minddrive/internal/tools"
)

func chatCmd() *cobra.Command {
	var agent string
	var lang string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent's root dialog in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agent == "" {
				return fmt.Errorf("--agent is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, agent, lang)
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "agent (team member id) to chat with")
	cmd.Flags().StringVar(&lang, "lang", "", "your UI language code (e.g. en, zh)")
	return cmd
}

func runChat(ctx context.Context, agent, lang string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	loader := minds.NewLoader(cfg.Workspace)
	defer loader.Close()

	toolReg := tools.NewRegistry()
	toolReg.Register(tools.NewRemindTool())

	pub := bus.NewMessageBus()
	pub.Subscribe("chat", renderEvent)
	rt := driver.New(cfg, st, loader, toolReg, pub)

	root, err := rt.EnsureRoot(agent)
	if err != nil {
		return err
	}
	fmt.Printf("chatting with @%s (empty line sends, /quit exits)\n", agent)

	in := bufio.NewScanner(os.Stdin)
	for {
		if err := answerOpenQuestions(ctx, rt, root.ID, lang); err != nil {
			return err
		}
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		}
		grammar := dialog.GrammarMarkdown
		if strings.HasPrefix(line, "@") {
			grammar = dialog.GrammarTellask
		}
		if err := rt.SubmitUserSaying(ctx, agent, line, grammar, lang); err != nil {
			slog.Error("drive failed", "error", err)
		}
	}
}

// answerOpenQuestions walks the dialog's unanswered questions with a huh
// form per question.
func answerOpenQuestions(ctx context.Context, rt *driver.Runtime, id dialog.ID, lang string) error {
	questions, err := rt.OpenQuestions(id)
	if err != nil {
		return err
	}
	for _, q := range questions {
		var answer string
		form := huh.NewForm(huh.NewGroup(
			huh.NewText().
				Title(fmt.Sprintf("Question from your agent: %s", q.TellaskHead)).
				Description(q.BodyContent).
				Value(&answer),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if strings.TrimSpace(answer) == "" {
			continue
		}
		if err := rt.AnswerQuestion(ctx, id, q.ID, answer, lang); err != nil {
			slog.Error("answer failed", "question", q.ID, "error", err)
		}
	}
	return nil
}

// renderEvent prints bus events relevant to a terminal chat.
func renderEvent(evt bus.Event) {
	switch evt.Name {
	case bus.EventSayingChunk, bus.EventMarkdownRender, bus.EventThinkingChunk:
		if p, ok := evt.Payload.(map[string]string); ok {
			if evt.Name == bus.EventThinkingChunk {
				return
			}
			fmt.Print(p["text"])
		}
	case bus.EventEndOfUserSaying:
		fmt.Println()
	case bus.EventTeammateResponse:
		if p, ok := evt.Payload.(map[string]string); ok {
			fmt.Printf("\n[@%s] %s\n", p["responder_id"], p["preview"])
		}
	case bus.EventDomindsNotice:
		if p, ok := evt.Payload.(map[string]string); ok {
			for _, v := range p {
				fmt.Printf("\n[dominds] %s\n", v)
			}
		}
	case bus.EventRunState:
		if m, ok := evt.Payload.(bus.RunStateMarker); ok && m.Marker == "interrupted" {
			fmt.Printf("\n[interrupted: %s] %s\n", m.Reason, m.Detail)
		}
	}
}
