package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/qa"
)

var chatCmd = &cobra.Command{
	Use:   "chat [document_id]",
	Short: "Ask questions about a document interactively",
	Long: `Starts an interactive session. Each line is a question about the
current document. History is kept for the session only.

Commands:
  :load <file>   ingest a local file and switch to it
  :open <id>     switch to a previously ingested document
  :history       show the questions asked about the current document
  :reset         forget the current document
  :quit          leave the session`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	session := qa.NewSession(service)
	if len(args) == 1 {
		if _, err := session.Resume(cmd.Context(), args[0]); err != nil {
			return userError(err)
		}
	}
	return chat(cmd.Context(), session, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chat runs the read-answer loop until :quit, end of input or cancellation.
// Failures are reported inline and the loop continues.
func chat(ctx context.Context, session *qa.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if h := session.Handle(); h != nil {
		fmt.Fprintln(out, ui.Muted.Render("Asking about "+h.Document.DisplayName+". Type :quit to leave."))
	} else {
		fmt.Fprintln(out, ui.Muted.Render("Load a document with :load <file> or :open <id>. Type :quit to leave."))
	}

	for {
		fmt.Fprint(out, prompt(session))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, ":"):
			if quit := chatCommand(ctx, session, line, out); quit {
				return nil
			}
			continue
		}

		ex, err := session.Ask(ctx, line)
		if err != nil {
			logger.Debug("question failed", "error", err)
			fmt.Fprintln(out, ui.Error.Render(qa.UserMessage(err)))
			continue
		}
		fmt.Fprintln(out, ui.Answer.Render(ex.Answer))
		printSources(out, ex.Sources)
		fmt.Fprintln(out)
	}
}

func prompt(session *qa.Session) string {
	if h := session.Handle(); h != nil {
		return ui.Prompt.Render(truncate(h.Document.DisplayName, 30)+">") + " "
	}
	return ui.Prompt.Render("docqa>") + " "
}

// chatCommand runs one :command and reports whether the session should end.
func chatCommand(ctx context.Context, session *qa.Session, line string, out io.Writer) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":quit", ":q", ":exit":
		return true

	case ":load":
		if arg == "" {
			fmt.Fprintln(out, ui.Warning.Render("usage: :load <file>"))
			return false
		}
		raw, err := os.ReadFile(arg)
		if err != nil {
			fmt.Fprintln(out, ui.Error.Render(err.Error()))
			return false
		}
		h, err := session.Ingest(ctx, raw, filepath.Base(arg))
		if err != nil {
			logger.Debug("ingest failed", "file", arg, "error", err)
			fmt.Fprintln(out, ui.Error.Render(qa.UserMessage(err)))
			return false
		}
		printDocument(out, &h.Document)

	case ":open":
		if arg == "" {
			fmt.Fprintln(out, ui.Warning.Render("usage: :open <document_id>"))
			return false
		}
		h, err := session.Resume(ctx, arg)
		if err != nil {
			fmt.Fprintln(out, ui.Error.Render(qa.UserMessage(err)))
			return false
		}
		fmt.Fprintln(out, ui.Muted.Render("Asking about "+h.Document.DisplayName))

	case ":history":
		history := session.History()
		if len(history) == 0 {
			fmt.Fprintln(out, ui.Muted.Render("No questions yet."))
			return false
		}
		for i, ex := range history {
			fmt.Fprintf(out, "%s %s\n", ui.Label.Render(fmt.Sprintf("[%d] %s", i+1, ex.AskedAt.Format("15:04:05"))), ex.Question)
			fmt.Fprintln(out, ui.Answer.Render(ex.Answer))
		}

	case ":reset":
		session.Reset()
		fmt.Fprintln(out, ui.Muted.Render("Document unloaded."))

	default:
		fmt.Fprintln(out, ui.Warning.Render("unknown command "+name+"; try :load, :open, :history, :reset or :quit"))
	}
	return false
}
