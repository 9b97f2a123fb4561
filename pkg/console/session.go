package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/AliciaSchep/pgchat/internal/logger"
	"github.com/AliciaSchep/pgchat/pkg/agent"
	"github.com/AliciaSchep/pgchat/pkg/chat"
	"github.com/AliciaSchep/pgchat/pkg/db"
	"github.com/AliciaSchep/pgchat/pkg/display"
	apperrors "github.com/AliciaSchep/pgchat/pkg/errors"
	"github.com/AliciaSchep/pgchat/pkg/llm"
	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

// LocalUser owns every chat saved from the console
const LocalUser = "local"

// Options configure a console session
type Options struct {
	ConnString  string
	Mode        string
	Reasoner    llm.Reasoner
	Tools       *agent.Toolset
	Chats       *chat.Service
	MaxSteps    int
	TurnTimeout time.Duration
	StreamDelay time.Duration
	Log         *logger.Logger
	Out         io.Writer
}

// Session is an interactive chat against one database
type Session struct {
	connString   string
	mode         string
	orchestrator *agent.Orchestrator
	tools        *agent.Toolset
	chats        *chat.Service
	turnTimeout  time.Duration
	streamDelay  time.Duration
	log          *logger.Logger
	out          io.Writer
	pager        *display.Pager
	width        int

	rl         *readline.Instance
	chatID     string
	history    []transcript.Message
	lastResult *db.QueryResult
}

// NewSession validates the mode and wires the orchestrator. A nil Reasoner
// leaves only the slash commands available.
func NewSession(opts Options) (*Session, error) {
	if opts.ConnString == "" {
		return nil, db.ErrNoConnectionString
	}
	registry, err := agent.RegistryForMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Tools == nil {
		opts.Tools = agent.NewToolset(opts.Log)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Mode == "" {
		opts.Mode = agent.ModeDefault
	}

	s := &Session{
		connString:  opts.ConnString,
		mode:        opts.Mode,
		tools:       opts.Tools,
		chats:       opts.Chats,
		turnTimeout: opts.TurnTimeout,
		streamDelay: opts.StreamDelay,
		log:         opts.Log,
		out:         opts.Out,
		pager:       &display.Pager{Out: opts.Out, Height: 24},
		width:       80,
		chatID:      uuid.NewString(),
	}
	if opts.Out == os.Stdout {
		s.pager = display.NewPager()
		s.width = display.GetTerminalWidth()
	}

	if opts.Reasoner != nil {
		s.orchestrator = agent.NewOrchestrator(opts.Reasoner, opts.Tools, opts.Log)
		s.orchestrator.Registry = registry
		s.orchestrator.System = agent.SystemPrompt(registry)
		if opts.MaxSteps > 0 {
			s.orchestrator.MaxSteps = opts.MaxSteps
		}
	}
	return s, nil
}

// Start runs the read-eval loop until the user quits or ctx is done
func (s *Session) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pgchat> ",
		HistoryFile:     os.ExpandEnv("$HOME/.pgchat_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()
	s.rl = rl

	if s.orchestrator == nil {
		apperrors.UserInfo("LLM features not available. Set ANTHROPIC_API_KEY or OPENAI_API_KEY to enable them.")
	}

	for {
		if ctx.Err() != nil {
			break
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					break
				}
				continue
			}
			break
		}

		quit, err := s.HandleLine(ctx, line)
		if err != nil {
			apperrors.UserError("%v", err)
		}
		if quit {
			break
		}
	}

	fmt.Fprintln(s.out, "Goodbye!")
	return nil
}

// HandleLine processes one line of input and reports whether the session should end
func (s *Session) HandleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleCommand(ctx, line)
	}
	return false, s.handleQuestion(ctx, line)
}

func (s *Session) handleCommand(ctx context.Context, line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/h":
		s.showHelp()
	case "/tables", "/t":
		return false, s.listTables(ctx)
	case "/describe", "/d":
		if rest == "" {
			return false, fmt.Errorf("usage: /describe <table_name>")
		}
		return false, s.describeTable(ctx, rest)
	case "/indexes", "/i":
		return false, s.listIndexes(ctx)
	case "/run", "/r":
		if rest == "" {
			return false, fmt.Errorf("usage: /run <sql>")
		}
		return false, s.runSQL(ctx, rest)
	case "/explain", "/e":
		if rest == "" {
			return false, fmt.Errorf("usage: /explain <sql>")
		}
		return false, s.explain(ctx, rest)
	case "/save":
		return false, s.saveResult(rest)
	case "/mode", "/m":
		if rest == "" {
			fmt.Fprintf(s.out, "Current mode: %s\n", s.mode)
			fmt.Fprintf(s.out, "Available modes: %s, %s\n", agent.ModeDefault, agent.ModeSchemaOnly)
			return false, nil
		}
		return false, s.setMode(rest)
	case "/clear":
		s.history = nil
		s.chatID = uuid.NewString()
		fmt.Fprintln(s.out, "Started a new conversation.")
	case "/chats":
		return false, s.listChats(ctx)
	case "/rename":
		return false, s.renameChat(ctx, rest)
	default:
		return false, fmt.Errorf("unknown command: %s (type /help for available commands)", name)
	}
	return false, nil
}

// handleQuestion runs one turn of the agent and streams the answer
func (s *Session) handleQuestion(ctx context.Context, question string) error {
	if s.orchestrator == nil {
		apperrors.UserWarning("LLM agent not available")
		fmt.Fprintln(s.out, "In the meantime, you can explore the database using /tables, /describe <table> and /run <sql>.")
		return nil
	}

	// Ctrl-C cancels the turn, not the session
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(turnCtx, s.turnTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	history := append(append([]transcript.Message(nil), s.history...), transcript.Message{
		ID:        uuid.NewString(),
		Role:      transcript.RoleUser,
		Content:   question,
		Parts:     []transcript.Part{transcript.TextPart(question)},
		CreatedAt: &now,
	})

	hooks := agent.Hooks{
		OnToolCall: func(call agent.Call) {
			fmt.Fprintf(s.out, "🔧 %s...\n", agent.Label(call.Kind))
		},
		OnToolResult: func(call agent.Call, result agent.Result) {
			if result.IsError() {
				fmt.Fprintf(s.out, "   ⚠️  %s\n", result.Error)
			}
		},
	}

	outcome, err := s.orchestrator.Run(turnCtx, agent.Turn{History: history, ConnString: s.connString}, hooks)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			apperrors.UserWarning("Request cancelled")
			return nil
		}
		return fmt.Errorf("error getting response from AI: %w", err)
	}

	fmt.Fprintln(s.out)
	if err := agent.StreamLines(ctx, outcome.Answer, s.streamDelay, func(chunk string) error {
		_, err := io.WriteString(s.out, chunk)
		return err
	}); err != nil {
		return err
	}
	fmt.Fprintln(s.out)
	if outcome.Exhausted {
		apperrors.UserInfo("Stopped after %d steps", outcome.Steps)
	}

	s.history = outcome.Transcript(history)
	if s.chats != nil {
		if _, err := s.chats.Save(context.WithoutCancel(ctx), LocalUser, s.chatID, history, outcome.Messages); err != nil {
			s.log.Warn("failed to save chat", "chat_id", s.chatID, "error", err)
		}
	}
	return nil
}

func (s *Session) withSession(ctx context.Context, fn func(db.Session) error) error {
	dialer := s.tools.Dialer
	if dialer == nil {
		dialer = db.PgxDialer{}
	}
	return db.WithSession(ctx, dialer, s.connString, fn)
}

func (s *Session) listTables(ctx context.Context) error {
	var tables []db.TableColumns
	err := s.withSession(ctx, func(sess db.Session) error {
		var err error
		tables, err = db.ListTablesWithColumns(ctx, sess)
		return err
	})
	if err != nil {
		apperrors.DatabaseError("table listing", err)
		return nil
	}
	if len(tables) == 0 {
		fmt.Fprintln(s.out, "No tables found in the database.")
		return nil
	}

	fmt.Fprintln(s.out, "Tables:")
	fmt.Fprintln(s.out, "=======")
	for _, t := range tables {
		fmt.Fprintf(s.out, "%-30s %-15s %d columns\n", t.TableName, t.SchemaName, len(t.Columns))
	}
	return nil
}

func (s *Session) describeTable(ctx context.Context, name string) error {
	schema, table := "public", name
	if before, after, ok := strings.Cut(name, "."); ok {
		schema, table = before, after
	}

	var tables []db.TableColumns
	var keys []db.ForeignKey
	err := s.withSession(ctx, func(sess db.Session) error {
		var err error
		if tables, err = db.ListTablesWithColumns(ctx, sess); err != nil {
			return err
		}
		keys, err = db.GetForeignKeys(ctx, sess)
		return err
	})
	if err != nil {
		apperrors.DatabaseError("describe", err)
		return nil
	}

	var found *db.TableColumns
	for i := range tables {
		if tables[i].SchemaName == schema && tables[i].TableName == table {
			found = &tables[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("table %s.%s not found", schema, table)
	}

	fmt.Fprintf(s.out, "Table: %s.%s\n\n", found.SchemaName, found.TableName)
	fmt.Fprintf(s.out, "%-25s %-25s %s\n", "Name", "Type", "Nullable")
	fmt.Fprintln(s.out, strings.Repeat("-", 60))
	for _, col := range found.Columns {
		nullable := "YES"
		if !col.IsNullable {
			nullable = "NO"
		}
		fmt.Fprintf(s.out, "%-25s %-25s %s\n", col.Name, col.Type, nullable)
	}

	var header bool
	for _, fk := range keys {
		if fk.TableSchema != schema || fk.TableName != table {
			continue
		}
		if !header {
			fmt.Fprintln(s.out, "\nForeign Keys:")
			header = true
		}
		fmt.Fprintf(s.out, "%s -> %s.%s.%s\n", fk.ColumnName, fk.ForeignTableSchema, fk.ForeignTableName, fk.ForeignColumnName)
	}
	return nil
}

func (s *Session) listIndexes(ctx context.Context) error {
	var indexes []db.IndexDef
	err := s.withSession(ctx, func(sess db.Session) error {
		var err error
		indexes, err = db.ListIndexes(ctx, sess)
		return err
	})
	if err != nil {
		apperrors.DatabaseError("index listing", err)
		return nil
	}
	if len(indexes) == 0 {
		fmt.Fprintln(s.out, "No indexes found.")
		return nil
	}
	for _, idx := range indexes {
		fmt.Fprintf(s.out, "%s.%s: %s\n", idx.SchemaName, idx.TableName, idx.IndexDef)
	}
	return nil
}

// runSQL goes through the same guard and row cap as the agent's runQuery tool
func (s *Session) runSQL(ctx context.Context, query string) error {
	res := s.tools.RunSQL(ctx, s.connString, query)
	if res.IsError() {
		apperrors.UserError("%s", res.Error)
		return nil
	}

	var qr db.QueryResult
	if err := json.Unmarshal(res.Value, &qr); err != nil {
		return fmt.Errorf("failed to decode query result: %w", err)
	}
	s.lastResult = &qr

	title := fmt.Sprintf("Query Results (%d rows)", qr.RowCount)
	var b strings.Builder
	if err := display.RenderResult(&b, &qr, s.width); err != nil {
		return err
	}
	return s.pager.Show(ctx, title, b.String())
}

func (s *Session) explain(ctx context.Context, query string) error {
	res := s.tools.Explain(ctx, s.connString, query)
	if res.IsError() {
		apperrors.UserError("%s", res.Error)
		return nil
	}
	var plan any
	if err := json.Unmarshal(res.Value, &plan); err != nil {
		return fmt.Errorf("failed to decode plan: %w", err)
	}
	pretty, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return s.pager.Show(ctx, "Query Plan", string(pretty)+"\n")
}

func (s *Session) saveResult(filename string) error {
	if s.lastResult == nil {
		return fmt.Errorf("no query result to save (use /run first)")
	}
	path, err := display.SaveCSV(s.lastResult, filename)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "💾 Saved %d rows to %s\n", s.lastResult.RowCount, path)
	return nil
}

func (s *Session) setMode(mode string) error {
	registry, err := agent.RegistryForMode(mode)
	if err != nil {
		return err
	}
	old := s.mode
	s.mode = mode
	if s.orchestrator != nil {
		s.orchestrator.Registry = registry
		s.orchestrator.System = agent.SystemPrompt(registry)
	}
	fmt.Fprintf(s.out, "Mode changed from '%s' to '%s'\n", old, mode)

	switch mode {
	case agent.ModeSchemaOnly:
		fmt.Fprintln(s.out, "Schema-only mode: the assistant sees tables, indexes and foreign keys, but never runs queries")
	default:
		fmt.Fprintln(s.out, "Default mode: the assistant may read statistics, explain plans and run read-only queries")
	}
	return nil
}

func (s *Session) listChats(ctx context.Context) error {
	if s.chats == nil {
		return fmt.Errorf("chat history is not enabled")
	}
	chats, err := s.chats.List(ctx, LocalUser)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(s.out, "No saved chats.")
		return nil
	}
	for _, c := range chats {
		marker := " "
		if c.ID == s.chatID {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %-30s %s\n", marker, c.Name, c.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (s *Session) renameChat(ctx context.Context, name string) error {
	if s.chats == nil {
		return fmt.Errorf("chat history is not enabled")
	}
	c, err := s.chats.Rename(ctx, LocalUser, s.chatID, name)
	if errors.Is(err, chat.ErrNotFound) {
		return fmt.Errorf("ask a question first, then rename the chat")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Renamed chat to %q\n", c.Name)
	return nil
}

func (s *Session) showHelp() {
	fmt.Fprintln(s.out, "Available commands:")
	fmt.Fprintln(s.out, "  /help, /h          Show this help message")
	fmt.Fprintln(s.out, "  /quit, /exit, /q   Exit pgchat")
	fmt.Fprintln(s.out, "  /tables, /t        List tables")
	fmt.Fprintln(s.out, "  /describe <table>  Describe a table and its foreign keys")
	fmt.Fprintln(s.out, "  /indexes, /i       List indexes")
	fmt.Fprintln(s.out, "  /run <sql>         Run a read-only query (max 100 rows)")
	fmt.Fprintln(s.out, "  /explain <sql>     Show the query plan")
	fmt.Fprintln(s.out, "  /save [file]       Save the last /run result as CSV")
	fmt.Fprintln(s.out, "  /mode [mode]       Show or set the tool mode")
	fmt.Fprintln(s.out, "  /clear             Start a new conversation")
	fmt.Fprintln(s.out, "  /chats             List saved conversations")
	fmt.Fprintln(s.out, "  /rename <name>     Rename the current conversation")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Or just type a natural language question about your data!")
}
