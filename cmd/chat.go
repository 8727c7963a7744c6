package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getnao/nao-cli/internal/agent"
	"github.com/getnao/nao-cli/internal/mode"
	"github.com/getnao/nao-cli/internal/server"
	"github.com/getnao/nao-cli/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent about your project",
	Long: `Start an interactive chat grounded in the project's synced context.

Use -m to send a single message, or --serve to expose the chat over HTTP and
WebSocket instead.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var (
	chatMessage string
	chatSession string
	chatServe   bool
	chatPort    int
)

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and print the reply")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", session.DefaultKey, "Session key")
	chatCmd.Flags().BoolVar(&chatServe, "serve", false, "Serve the chat over HTTP and WebSocket")
	chatCmd.Flags().IntVar(&chatPort, "port", 0, "Port for --serve (default from nao_config.yaml)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, closeCache, err := newAgent(ctx, p)
	if err != nil {
		return err
	}
	defer closeCache()

	out := cmd.OutOrStdout()

	if chatServe {
		port := p.Config.Server.Port
		if chatPort != 0 {
			port = chatPort
		}
		srv := server.New(server.Config{
			Host:    p.Config.Server.Host,
			Port:    port,
			Token:   p.Config.Server.Token,
			Mode:    mode.Current(),
			Version: cmd.Root().Version,
			Agent:   a,
			Logger:  logger,
		})
		fmt.Fprintf(out, "%s chat server on http://%s (Ctrl+C to stop)\n", green("✓"), srv.Addr())
		return srv.Start(ctx)
	}

	if chatMessage != "" {
		reply, err := a.ProcessDirect(ctx, chatSession, chatMessage)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
		return nil
	}

	return chatREPL(ctx, a, cmd.InOrStdin(), out)
}

const chatHelp = `Commands:
  /help   show this help
  /clear  forget the conversation so far
  /quit   leave (also /exit, Ctrl+D)`

// chatREPL reads questions line by line until EOF, /quit or ctx is done.
func chatREPL(ctx context.Context, a *agent.Agent, in io.Reader, out io.Writer) error {
	sess := a.Sessions.GetOrCreate(ctx, chatSession)

	fmt.Fprintf(out, "%s %s (session %s, type /help)\n\n", bold("nao"), faint(a.Model), chatSession)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, bold("you › "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		if ctx.Err() != nil {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "/quit", "/exit", "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "/clear":
			sess.Clear()
			if err := a.Sessions.Save(ctx, sess); err != nil {
				logger.Warn("could not save session", "err", err)
			}
			fmt.Fprintln(out, faint("conversation cleared"))
			continue
		}

		resp, err := a.Ask(ctx, sess, input)
		if err != nil {
			fmt.Fprintln(out, red("error: ")+err.Error())
			continue
		}
		if err := a.Sessions.Save(ctx, sess); err != nil {
			logger.Warn("could not save session", "err", err)
		}
		fmt.Fprintf(out, "\n%s\n%s\n\n", bold("nao"), resp.Content)
	}
	return scanner.Err()
}
