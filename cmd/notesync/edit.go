package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/notesync"
	"pkt.systems/notesync/core"
	"pkt.systems/notesync/internal/apiclient"
	"pkt.systems/notesync/internal/appconfig"
	"pkt.systems/notesync/internal/eventbus"
	"pkt.systems/notesync/schema"
	"pkt.systems/pslog"
)

const editHelp = `commands:
  tabs                 list open tabs (* active, + unsaved)
  tree                 show the directory tree
  show                 print the active document
  open <id>            select or open a document from the tree
  select <id>          switch to an open tab
  close <id>           close a tab
  new                  create a document
  edit <text>          replace the active content (\n for newlines)
  append <text>        append a line to the active content
  title <text>         rename the active document
  save                 save the active document now
  flush                save every unsaved document now
  refresh              pull changes from the server
  folder [name]        add a folder
  toggle <folder-id>   expand or collapse a folder
  chat <text>          ask the assistant
  log                  print the chat history
  quit                 stop autosave and exit
`

func newEditCmd() *cobra.Command {
	var cfgPath string
	var remote string
	var follow bool
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit documents on a notesync server from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if remote != "" {
				cfg.Remote.BaseURL = remote
			}
			editor, err := notesync.NewEditor(notesync.EditorConfig{
				Workspace: cfg.WorkspaceSettings(),
				Remote: apiclient.Config{
					BaseURL: cfg.Remote.BaseURL,
					Timeout: cfg.RemoteTimeout(),
					Logger:  logger,
				},
				Follow: follow,
			}, notesync.EditorDeps{Logger: logger})
			if err != nil {
				return err
			}
			return runEditor(cmd.Context(), editor, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&remote, "remote", "", "server base url (overrides remote.base_url)")
	cmd.Flags().BoolVar(&follow, "follow", false, "refresh when the server reports changes")
	return cmd
}

func runEditor(ctx context.Context, editor *notesync.Editor, in io.Reader, out io.Writer) error {
	w := &lockedWriter{w: out}
	events, unsubscribe := editor.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			printEvent(w, event)
		}
	}()
	defer func() {
		unsubscribe()
		<-done
	}()

	if err := editor.Start(ctx); err != nil {
		closeEditor(editor)
		return err
	}
	defer closeEditor(editor)

	r := &repl{ws: editor.Workspace(), out: w}
	r.printTabs()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for {
		w.printf("> ")
		if !scanner.Scan() {
			w.printf("\n")
			return scanner.Err()
		}
		quit, err := r.execute(ctx, scanner.Text())
		if err != nil {
			w.printf("error: %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func closeEditor(editor *notesync.Editor) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = editor.Close(ctx)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.w, format, args...)
}

func printEvent(w *lockedWriter, event eventbus.Event) {
	if event.Type != eventbus.EventSave {
		return
	}
	save := event.Save
	switch save.Type {
	case schema.SaveEventSaved:
		suffix := ""
		if save.StillDirty {
			suffix = ", edited since"
		}
		w.printf("[saved %s %q (%s%s)]\n", save.ID, save.Title, save.Trigger, suffix)
	case schema.SaveEventFailed:
		w.printf("[save failed %s %q (%s): %v]\n", save.ID, save.Title, save.Trigger, save.Err)
	}
}

type repl struct {
	ws  core.Workspace
	out *lockedWriter
}

func (r *repl) execute(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "":
		return false, nil
	case "help", "?":
		r.out.printf("%s", editHelp)
	case "quit", "exit":
		return true, nil
	case "tabs":
		r.printTabs()
	case "tree":
		r.printTree(r.ws.Directory(), 0)
	case "show":
		tab, ok := r.ws.ActiveTab()
		if !ok {
			return false, schema.ErrTabNotFound
		}
		r.out.printf("--- %s\n%s\n---\n", tab.Title, tab.Content)
	case "open":
		id, err := schema.ParseDocID(arg)
		if err != nil {
			return false, err
		}
		tab, err := r.ws.SelectOrOpen(ctx, id)
		if err != nil {
			return false, err
		}
		r.out.printf("opened %s %q\n", tab.ID, tab.Title)
	case "select":
		id, err := schema.ParseDocID(arg)
		if err != nil {
			return false, err
		}
		return false, r.ws.Activate(id)
	case "close":
		id, err := schema.ParseDocID(arg)
		if err != nil {
			return false, err
		}
		return false, r.ws.CloseTab(id)
	case "new":
		doc, err := r.ws.NewDocument(ctx)
		if err != nil {
			return false, err
		}
		r.out.printf("created %s %q\n", doc.ID, doc.Title)
	case "edit":
		return false, r.ws.EditActive(unescape(arg))
	case "append":
		tab, ok := r.ws.ActiveTab()
		if !ok {
			return false, schema.ErrTabNotFound
		}
		content := tab.Content
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return false, r.ws.EditActive(content + unescape(arg))
	case "title":
		tab, ok := r.ws.ActiveTab()
		if !ok {
			return false, schema.ErrTabNotFound
		}
		return false, r.ws.Rename(tab.ID, arg)
	case "save":
		return false, r.ws.Save(ctx)
	case "flush":
		return false, r.ws.Flush(ctx)
	case "refresh":
		result, err := r.ws.Refresh(ctx)
		if err != nil {
			return false, err
		}
		r.out.printf("listed %d, added %d, updated %d, reconciled %d\n", result.Listed, result.Added, result.Updated, result.Reconciled)
	case "folder":
		entry := r.ws.AddFolder(arg)
		r.out.printf("folder %s %q\n", entry.ID, entry.Name)
	case "toggle":
		id, err := schema.ParseDocID(arg)
		if err != nil {
			return false, err
		}
		return false, r.ws.ToggleFolder(id)
	case "chat":
		reply, err := r.ws.SendChat(ctx, arg)
		if err != nil {
			return false, err
		}
		r.out.printf("assistant: %s\n", reply.Content)
	case "log":
		for _, msg := range r.ws.ChatHistory() {
			r.out.printf("%s [%s]: %s\n", msg.Role, msg.Timestamp.Format(time.Kitchen), msg.Content)
		}
	default:
		return false, errors.New("unknown command " + name + " (try help)")
	}
	return false, nil
}

func (r *repl) printTabs() {
	for _, tab := range r.ws.Tabs() {
		marker := " "
		if tab.Active {
			marker = "*"
		}
		dirty := ""
		if tab.Dirty {
			dirty = " +"
		}
		r.out.printf("%s %s %s%s\n", marker, tab.ID, tab.Title, dirty)
	}
}

func (r *repl) printTree(entries []schema.DirectoryEntry, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, entry := range entries {
		if entry.Kind == schema.EntryFolder {
			sign := "+"
			if entry.Expanded {
				sign = "-"
			}
			r.out.printf("%s%s %s/ (%s)\n", indent, sign, entry.Name, entry.ID)
			if entry.Expanded {
				r.printTree(entry.Children, depth+1)
			}
			continue
		}
		r.out.printf("%s  %s (%s)\n", indent, entry.Name, entry.ID)
	}
}

func unescape(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}
