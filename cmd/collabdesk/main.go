// Command collabdesk is the terminal client for the collaborative document
// editor: account and document management, live-synced editing with
// debounced autosave, version history with forward-only revert, and service
// health status.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/api"
	"github.com/collabdesk/collabdesk/internal/config"
	"github.com/collabdesk/collabdesk/internal/docsync"
	"github.com/collabdesk/collabdesk/internal/editor"
	"github.com/collabdesk/collabdesk/internal/health"
	"github.com/collabdesk/collabdesk/internal/ledger"
	"github.com/collabdesk/collabdesk/internal/mirror"
	"github.com/collabdesk/collabdesk/internal/session"
)

const usage = `usage: collabdesk [-config FILE] [-verbose] COMMAND [flags]

account:
  register   -username U -email E -password P
  login      -email E -password P
  logout
  whoami
  profile    [-username U] [-email E] [-password P]
  users
  rm-user    -id N

documents:
  docs       [-mine]
  new        -title T [-content C]
  open       -doc N [-local-file PATH]
  rm-doc     -id N

versions:
  versions          -doc N
  history           -doc N
  show-version      -id N
  revert            -doc N -version N [-yes]
  contributions     -doc N
  my-contributions  [-user N]

service:
  status     [-watch]
`

type app struct {
	cfg    config.Config
	client *api.Client
	store  session.Store
	logger zerolog.Logger
	stdin  *bufio.Reader
}

func main() {
	configPath := flag.String("config", envOrDefault("COLLABDESK_CONFIG", ""), "config file path")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger := newLogger(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if dsn := strings.TrimSpace(os.Getenv("COLLABDESK_SESSION_DSN")); dsn != "" {
		cfg.SessionDSN = dsn
	}
	if gw := strings.TrimSpace(os.Getenv("COLLABDESK_GATEWAY")); gw != "" {
		cfg.Endpoints.Gateway = gw
	}

	store, err := session.BuildStoreFromDSN(cfg.SessionDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid session store DSN")
	}
	defer store.Close()

	resolver := api.NewResolver(cfg.Endpoints, &http.Client{Timeout: 15 * time.Second}, logger)
	a := &app{
		cfg:    cfg,
		client: api.NewClient(resolver),
		store:  store,
		logger: logger,
		stdin:  bufio.NewReader(os.Stdin),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := a.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Fatal().Err(err).Str("command", args[0]).Msg("command failed")
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return a.cmdRegister(ctx, args)
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.store.Clear()
	case "whoami":
		return a.cmdWhoami(ctx)
	case "profile":
		return a.cmdProfile(ctx, args)
	case "users":
		return a.cmdUsers(ctx)
	case "rm-user":
		return a.cmdRemoveUser(ctx, args)
	case "docs":
		return a.cmdDocs(ctx, args)
	case "new":
		return a.cmdNew(ctx, args)
	case "open":
		return a.cmdOpen(ctx, args)
	case "rm-doc":
		return a.cmdRemoveDoc(ctx, args)
	case "versions":
		return a.cmdVersions(ctx, args, false)
	case "history":
		return a.cmdVersions(ctx, args, true)
	case "show-version":
		return a.cmdShowVersion(ctx, args)
	case "revert":
		return a.cmdRevert(ctx, args)
	case "contributions":
		return a.cmdContributions(ctx, args)
	case "my-contributions":
		return a.cmdMyContributions(ctx, args)
	case "status":
		return a.cmdStatus(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)
	if *username == "" || *email == "" || *password == "" {
		return errors.New("register requires -username, -email and -password")
	}
	user, err := a.client.Register(ctx, *username, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (id %d)\n", user.Username, user.ID)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}
	result, err := a.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	err = a.store.Save(&session.Session{
		UserID:   result.UserID,
		Username: result.Username,
		Email:    result.Email,
		SavedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (id %d)\n", result.Username, result.UserID)
	return nil
}

func (a *app) cmdWhoami(ctx context.Context) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	user, err := a.client.GetUser(ctx, sess.UserID)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> (id %d)\n", user.Username, user.Email, user.ID)
	return nil
}

func (a *app) cmdProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	username := fs.String("username", "", "new username")
	email := fs.String("email", "", "new email")
	password := fs.String("password", "", "new password")
	_ = fs.Parse(args)

	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	user, err := a.client.UpdateProfile(ctx, sess.UserID, api.ProfileUpdate{
		Username: *username,
		Email:    *email,
		Password: *password,
	})
	if err != nil {
		return err
	}
	sess.Username = user.Username
	sess.Email = user.Email
	if err := a.store.Save(sess); err != nil {
		return err
	}
	fmt.Printf("profile updated: %s <%s>\n", user.Username, user.Email)
	return nil
}

func (a *app) cmdUsers(ctx context.Context) error {
	users, err := a.client.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		fmt.Printf("%6d  %-20s %s\n", user.ID, user.Username, user.Email)
	}
	return nil
}

func (a *app) cmdRemoveUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rm-user", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id")
	_ = fs.Parse(args)
	if *id == 0 {
		return errors.New("rm-user requires -id")
	}
	if err := a.client.DeleteUser(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("deleted user %d\n", *id)
	return nil
}

func (a *app) cmdDocs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	mine := fs.Bool("mine", false, "only documents owned by the logged-in user")
	_ = fs.Parse(args)

	var (
		docs []api.Document
		err  error
	)
	if *mine {
		sess, sessErr := a.requireSession()
		if sessErr != nil {
			return sessErr
		}
		docs, err = a.client.ListDocumentsByOwner(ctx, sess.UserID)
	} else {
		docs, err = a.client.ListDocuments(ctx)
	}
	if err != nil {
		return err
	}
	for _, doc := range docs {
		fmt.Printf("%6d  %-30s owner %d  updated %s\n",
			doc.ID, doc.Title, doc.OwnerID, doc.UpdatedAt)
	}
	return nil
}

func (a *app) cmdNew(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	title := fs.String("title", "", "document title")
	content := fs.String("content", "", "initial content")
	_ = fs.Parse(args)
	if *title == "" {
		return errors.New("new requires -title")
	}
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	doc, err := a.client.CreateDocument(ctx, *title, *content, sess.UserID)
	if err != nil {
		return err
	}
	fmt.Printf("created document %d: %s\n", doc.ID, doc.Title)
	return nil
}

func (a *app) cmdRemoveDoc(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rm-doc", flag.ExitOnError)
	id := fs.Int64("id", 0, "document id")
	_ = fs.Parse(args)
	if *id == 0 {
		return errors.New("rm-doc requires -id")
	}
	if err := a.client.DeleteDocument(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("deleted document %d\n", *id)
	return nil
}

// cmdOpen runs the interactive editing loop: a live subscription renders
// peer updates, stdin lines (or an external editor via -local-file) feed the
// autosave pipeline, and the header line tracks service health.
func (a *app) cmdOpen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	docID := fs.Int64("doc", 0, "document id")
	localFile := fs.String("local-file", a.cfg.MirrorFile, "mirror the document to this file and watch it")
	_ = fs.Parse(args)
	if *docID == 0 {
		return errors.New("open requires -doc")
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	doc, err := a.client.GetDocument(ctx, *docID)
	if err != nil {
		return err
	}

	buffer := editor.NewBuffer()
	buffer.SetTitle(doc.Title)
	var surface docsync.Editor = buffer

	var fileMirror *mirror.Mirror
	if strings.TrimSpace(*localFile) != "" {
		fileMirror = mirror.New(*localFile, nil, a.logger)
		surface = &mirror.EditorTee{Inner: buffer, Mirror: fileMirror, Logger: a.logger}
	}

	sync := docsync.NewDocumentSession(docsync.SessionOptions{
		Client:      a.client,
		Editor:      surface,
		Dial:        a.dialFunc(),
		QuietWindow: a.cfg.QuietWindow,
		OnStatus: func(connected bool) {
			if connected {
				fmt.Println("[sync connected]")
			} else {
				fmt.Println("[sync lost]")
			}
		},
		Reconnect: a.cfg.ReconnectPolicy(),
		Logger:    a.logger,
	})
	defer sync.Close()

	monitor := health.NewMonitor(a.client.Resolver(), health.Options{
		Interval:     a.cfg.HealthInterval,
		ProbeTimeout: a.cfg.ProbeTimeout,
		Logger:       a.logger,
	})
	go monitor.Run(ctx)

	if err := sync.Open(ctx, doc); err != nil {
		return err
	}
	if fileMirror != nil {
		if err := fileMirror.Start(doc.Content); err != nil {
			return err
		}
		fileMirror.SetOnEdit(sync.Edit)
		defer fileMirror.Close()
		fmt.Printf("editing %q in %s; :title NEW sets the title, :quit exits\n", doc.Title, *localFile)
	} else {
		fmt.Printf("editing %q; type lines to append, :title NEW sets the title, :quit exits\n", doc.Title)
	}
	fmt.Printf("[%s]\n", monitor.Snapshot().Indicator())

	return a.editLoop(ctx, sync, buffer, monitor)
}

func (a *app) editLoop(ctx context.Context, sync *docsync.DocumentSession, buffer *editor.Buffer, monitor *health.Monitor) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := a.stdin.ReadString('\n')
			if err != nil {
				readErr <- err
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-readErr:
			// stdin closed; the deferred session close flushes the last edit.
			return nil
		case line := <-lines:
			switch {
			case line == ":quit":
				return nil
			case line == ":status":
				fmt.Printf("[%s] %d words\n", monitor.Snapshot().Indicator(), buffer.WordCount())
			case strings.HasPrefix(line, ":title "):
				title := strings.TrimSpace(strings.TrimPrefix(line, ":title "))
				if err := sync.SetTitle(ctx, title); err != nil {
					a.logger.Error().Err(err).Msg("title update failed")
					continue
				}
				buffer.SetTitle(title)
			default:
				content := buffer.Content()
				if content != "" {
					content += "\n"
				}
				sync.Edit(content + line)
			}
		}
	}
}

func (a *app) cmdVersions(ctx context.Context, args []string, rich bool) error {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	docID := fs.Int64("doc", 0, "document id")
	_ = fs.Parse(args)
	if *docID == 0 {
		return errors.New("-doc is required")
	}
	l := a.ledger()
	var (
		versions []api.Version
		err      error
	)
	if rich {
		versions, err = l.History(ctx, *docID)
	} else {
		versions, err = l.Load(ctx, *docID)
	}
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Printf("v%-4d id %-6d by user %-4d %s  %s\n",
			v.VersionNumber, v.ID, v.EditedByUserID,
			v.Timestamp.Format(time.RFC3339), v.ChangeDescription)
	}
	return nil
}

func (a *app) cmdShowVersion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show-version", flag.ExitOnError)
	id := fs.Int64("id", 0, "version id")
	_ = fs.Parse(args)
	if *id == 0 {
		return errors.New("show-version requires -id")
	}
	v, err := a.ledger().Inspect(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("version %d (v%d of document %d) by user %d at %s\n\n%s\n",
		v.ID, v.VersionNumber, v.DocumentID, v.EditedByUserID,
		v.Timestamp.Format(time.RFC3339), v.Content)
	return nil
}

func (a *app) cmdRevert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revert", flag.ExitOnError)
	docID := fs.Int64("doc", 0, "document id")
	versionID := fs.Int64("version", 0, "version id to restore")
	yes := fs.Bool("yes", false, "skip confirmation")
	_ = fs.Parse(args)
	if *docID == 0 || *versionID == 0 {
		return errors.New("revert requires -doc and -version")
	}

	confirm := a.promptConfirm
	if *yes {
		confirm = func(string) bool { return true }
	}
	l := ledger.New(ledger.Options{API: a.client, Confirm: confirm, Logger: a.logger})
	result, err := l.Revert(ctx, *docID, *versionID)
	if errors.Is(err, ledger.ErrRevertDeclined) {
		fmt.Println("revert aborted")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("reverted: new version v%d created\n", result.NewVersion.VersionNumber)

	versions, err := l.Load(ctx, *docID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Printf("v%-4d id %-6d by user %-4d %s\n",
			v.VersionNumber, v.ID, v.EditedByUserID, v.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func (a *app) cmdContributions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("contributions", flag.ExitOnError)
	docID := fs.Int64("doc", 0, "document id")
	_ = fs.Parse(args)
	if *docID == 0 {
		return errors.New("contributions requires -doc")
	}
	contrib, err := a.ledger().Contributions(ctx, *docID)
	if err != nil {
		return err
	}
	fmt.Printf("document %d: %d versions\n", contrib.DocumentID, contrib.TotalVersions)
	for user, count := range contrib.UserContributions {
		fmt.Printf("  user %-6s %d\n", user, count)
	}
	return nil
}

func (a *app) cmdMyContributions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("my-contributions", flag.ExitOnError)
	userID := fs.Int64("user", 0, "user id (defaults to the logged-in user)")
	_ = fs.Parse(args)

	if *userID == 0 {
		sess, err := a.requireSession()
		if err != nil {
			return err
		}
		*userID = sess.UserID
	}
	versions, err := a.ledger().UserContributions(ctx, *userID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Printf("document %-6d v%-4d %s\n",
			v.DocumentID, v.VersionNumber, v.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	watch := fs.Bool("watch", false, "keep probing until interrupted")
	_ = fs.Parse(args)

	printStatus := func(status health.Status) {
		fmt.Printf("[%s]", status.Indicator())
		for _, svc := range api.KnownServices() {
			state := "down"
			if status[svc] {
				state = "up"
			}
			fmt.Printf("  %s=%s", svc, state)
		}
		fmt.Println()
	}

	monitor := health.NewMonitor(a.client.Resolver(), health.Options{
		Interval:     a.cfg.HealthInterval,
		ProbeTimeout: a.cfg.ProbeTimeout,
		OnUpdate:     printStatus,
		Logger:       a.logger,
	})
	if !*watch {
		monitor.CheckOnce(ctx)
		return nil
	}
	monitor.Run(ctx)
	return nil
}

func (a *app) dialFunc() docsync.DialFunc {
	httpClient := &http.Client{} // no overall timeout; the stream stays open
	if a.cfg.Transport == "websocket" {
		return docsync.NewWSDialer(a.cfg.Endpoints, httpClient).Dial
	}
	return docsync.NewSSEDialer(a.cfg.Endpoints, httpClient).Dial
}

func (a *app) ledger() *ledger.Ledger {
	return ledger.New(ledger.Options{API: a.client, Logger: a.logger})
}

func (a *app) requireSession() (*session.Session, error) {
	sess, err := a.store.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New("not logged in; run: collabdesk login -email E -password P")
	}
	return sess, nil
}

func (a *app) promptConfirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := a.stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}
