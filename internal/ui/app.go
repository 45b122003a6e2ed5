// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/engine"
	"github.com/jeranaias/chatterm/internal/history"
	"github.com/jeranaias/chatterm/internal/model"
)

// =============================================================================
// FOCUS
// =============================================================================

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
	focusModels
	focusConfirm
)

// noticeTTL is how long a transient notice stays on screen.
const noticeTTL = 5 * time.Second

// =============================================================================
// MESSAGES
// =============================================================================

type historyLoadedMsg struct {
	chats []model.ChatSummary
	err   error
}

type modelsLoadedMsg struct {
	models []model.ChatModel
}

type chatOpenedMsg struct {
	chatID string
	msgs   []*model.Message
	err    error
}

type titleResultMsg struct {
	chatID string
	err    error
}

type noticeExpiredMsg struct{}

// =============================================================================
// APP MODEL
// =============================================================================

// App is the root Bubble Tea model.
type App struct {
	cfg     *config.Config
	client  *api.Client
	session *auth.Session
	cache   *history.Cache
	bus     *history.Bus

	eng      *engine.Engine
	renderer *Renderer
	theme    *Theme
	keys     KeyMap

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model
	sidebar  Sidebar

	models        []model.ChatModel
	modelIndex    int
	confirmIndex  int
	focus         focusArea
	showSidebar   bool
	notice        string
	width, height int
	ready         bool

	historyCh     <-chan struct{}
	historyCancel func()
}

// NewApp wires the interface around an engine for one conversation.
func NewApp(cfg *config.Config, client *api.Client, session *auth.Session, cache *history.Cache, bus *history.Bus, eng *engine.Engine) *App {
	theme := NewTheme(cfg.UI.Theme)

	ta := textarea.New()
	ta.Placeholder = "메시지를 입력하세요..."
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.StatusHi

	ch, cancel := bus.Subscribe()
	app := &App{
		cfg:           cfg,
		client:        client,
		session:       session,
		cache:         cache,
		bus:           bus,
		eng:           eng,
		theme:         theme,
		keys:          DefaultKeyMap(),
		input:         ta,
		spin:          sp,
		showSidebar:   !cfg.UI.CompactMode,
		historyCh:     ch,
		historyCancel: cancel,
	}
	return app
}

// Run blocks until the user quits.
func (a *App) Run() error {
	defer a.historyCancel()
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// =============================================================================
// INIT
// =============================================================================

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spin.Tick,
		a.loadHistoryCmd(),
		a.loadModelsCmd(),
		engine.WaitForHistory(a.historyCh),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (a *App) userID() string {
	if id := a.session.CurrentIdentity(); id != nil {
		return id.User.ID
	}
	return model.GuestUserID
}

func (a *App) loadHistoryCmd() tea.Cmd {
	userID := a.userID()
	limit := a.cfg.History.Limit
	key := history.Key{Endpoint: history.Endpoint, UserID: userID, Cursor: ""}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		chats, err := a.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]model.ChatSummary, error) {
			return a.client.History(ctx, a.session.Token(), userID, limit)
		})
		if err != nil {
			// Degrade to the stale mirror so the sidebar is not empty
			// while the backend is unreachable.
			if stale, ok := a.cache.Stale(key); ok {
				return historyLoadedMsg{chats: stale, err: err}
			}
		}
		return historyLoadedMsg{chats: chats, err: err}
	}
}

func (a *App) loadModelsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return modelsLoadedMsg{models: a.client.ListModels(ctx)}
	}
}

func (a *App) openChatCmd(chatID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		msgs, err := a.client.Messages(ctx, a.session.Token(), chatID)
		return chatOpenedMsg{chatID: chatID, msgs: msgs, err: err}
	}
}

func (a *App) updateTitleCmd(chatID, title string) tea.Cmd {
	userID := a.userID()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := a.client.UpdateTitle(ctx, a.session.Token(), chatID, title)
		if err == nil {
			a.cache.Invalidate(userID)
		}
		return titleResultMsg{chatID: chatID, err: err}
	}
}

func expireNoticeCmd() tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{} })
}

// =============================================================================
// UPDATE
// =============================================================================

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		a.ready = true
		a.refreshViewport()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case engine.SendResultMsg:
		applied := a.eng.Resolve(msg.Ticket, msg.Resp, msg.Err)
		if applied && msg.Err != nil {
			a.notice = api.DetailOf(msg.Err, "응답을 받지 못했습니다.")
		}
		var cmd tea.Cmd
		if a.eng.PendingConfirmation() != nil {
			a.focus = focusConfirm
			a.confirmIndex = 0
		}
		a.refreshViewport()
		if a.notice != "" {
			cmd = expireNoticeCmd()
		}
		return a, cmd

	case engine.HistoryChangedMsg:
		return a, tea.Batch(a.loadHistoryCmd(), engine.WaitForHistory(a.historyCh))

	case historyLoadedMsg:
		if msg.chats != nil {
			a.sidebar.SetChats(msg.chats)
		}
		if msg.err != nil {
			a.notice = "대화 목록을 불러오지 못했습니다."
			return a, expireNoticeCmd()
		}
		// First load with no conversation open: resume the newest chat,
		// or mint a fresh id when the user has no history yet.
		if a.eng.ChatID() == "" && len(a.eng.Messages()) == 0 {
			if len(msg.chats) > 0 {
				return a, a.openChatCmd(msg.chats[0].ID)
			}
			a.eng = engine.New(a.client, a.session, a.cache, uuid.NewString()).
				WithModel(a.eng.SelectedModel())
		}
		return a, nil

	case modelsLoadedMsg:
		a.models = msg.models
		for i, m := range a.models {
			if m.ID == a.eng.SelectedModel() {
				a.modelIndex = i
			}
		}
		return a, nil

	case chatOpenedMsg:
		if msg.err != nil {
			a.notice = api.DetailOf(msg.err, "대화를 불러오지 못했습니다.")
			return a, expireNoticeCmd()
		}
		eng := engine.New(a.client, a.session, a.cache, msg.chatID).
			WithModel(a.eng.SelectedModel())
		eng.SeedMessages(msg.msgs)
		a.eng = eng
		a.focus = focusInput
		a.refreshViewport()
		return a, nil

	case titleResultMsg:
		if msg.err != nil {
			a.sidebar.RollbackRename(msg.chatID)
			a.notice = "제목을 변경하지 못했습니다."
			return a, expireNoticeCmd()
		}
		return a, nil

	case noticeExpiredMsg:
		a.notice = ""
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// handleKey routes key presses by focus area.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Quit) {
		return a, tea.Quit
	}

	switch a.focus {
	case focusConfirm:
		return a.handleConfirmKey(msg)
	case focusSidebar:
		return a.handleSidebarKey(msg)
	case focusModels:
		return a.handleModelsKey(msg)
	default:
		return a.handleInputKey(msg)
	}
}

func (a *App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Submit):
		return a.submit()

	case key.Matches(msg, a.keys.Stop):
		a.eng.Stop()
		a.refreshViewport()
		return a, nil

	case key.Matches(msg, a.keys.Reload):
		ticket, err := a.eng.Reload()
		if err != nil {
			return a, nil
		}
		a.refreshViewport()
		return a, a.eng.SendCmd(ticket)

	case key.Matches(msg, a.keys.NewChat):
		return a.newChat()

	case key.Matches(msg, a.keys.ToggleSidebar):
		a.showSidebar = !a.showSidebar
		if a.showSidebar {
			a.focus = focusSidebar
		}
		a.layout()
		return a, nil

	case key.Matches(msg, a.keys.PickModel):
		if len(a.models) > 0 {
			a.focus = focusModels
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// newChat swaps in a fresh conversation under a newly minted id and
// broadcasts on the history bus so every chat-list listener refetches.
func (a *App) newChat() (tea.Model, tea.Cmd) {
	a.eng = engine.New(a.client, a.session, a.cache, uuid.NewString()).
		WithModel(a.eng.SelectedModel())
	a.input.Reset()
	a.focus = focusInput
	a.refreshViewport()
	a.bus.Publish()
	return a, nil
}

// submit sends the textarea content through the engine.
func (a *App) submit() (tea.Model, tea.Cmd) {
	text := a.input.Value()
	ticket, err := a.eng.Send(text)
	if err != nil {
		if errors.Is(err, engine.ErrBusy) {
			a.notice = "이전 응답을 기다리는 중입니다."
			return a, expireNoticeCmd()
		}
		return a, nil // empty input: no-op
	}
	a.input.Reset()
	a.refreshViewport()
	return a, a.eng.SendCmd(ticket)
}

func (a *App) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pending := a.eng.PendingConfirmation()
	if pending == nil {
		a.focus = focusInput
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Left), key.Matches(msg, a.keys.Up):
		if a.confirmIndex > 0 {
			a.confirmIndex--
		}
		return a, nil

	case key.Matches(msg, a.keys.Right), key.Matches(msg, a.keys.Down):
		if a.confirmIndex < len(pending.Choices)-1 {
			a.confirmIndex++
		}
		return a, nil

	case key.Matches(msg, a.keys.Escape):
		// Back to the input; typing will abandon the confirmation.
		a.focus = focusInput
		return a, nil

	case key.Matches(msg, a.keys.Submit):
		ticket, err := a.eng.Choose(pending.Choices[a.confirmIndex].Value)
		if err != nil {
			a.focus = focusInput
			return a, nil
		}
		a.focus = focusInput
		a.refreshViewport()
		return a, a.eng.SendCmd(ticket)
	}
	return a, nil
}

func (a *App) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.sidebar.Renaming() {
		switch msg.Type {
		case tea.KeyEnter:
			chatID, title, ok := a.sidebar.CommitRename()
			if !ok {
				return a, nil
			}
			return a, a.updateTitleCmd(chatID, title)
		case tea.KeyEsc:
			a.sidebar.CancelRename()
			return a, nil
		case tea.KeyBackspace:
			a.sidebar.RenameInput(0, true)
			return a, nil
		case tea.KeyRunes:
			for _, r := range msg.Runes {
				a.sidebar.RenameInput(r, false)
			}
			return a, nil
		case tea.KeySpace:
			a.sidebar.RenameInput(' ', false)
			return a, nil
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Up):
		a.sidebar.Move(-1)
	case key.Matches(msg, a.keys.Down):
		a.sidebar.Move(1)
	case key.Matches(msg, a.keys.Rename):
		a.sidebar.BeginRename()
	case key.Matches(msg, a.keys.NewChat):
		return a.newChat()
	case key.Matches(msg, a.keys.Submit):
		if sel, ok := a.sidebar.Selected(); ok {
			return a, a.openChatCmd(sel.ID)
		}
	case key.Matches(msg, a.keys.Escape), key.Matches(msg, a.keys.ToggleSidebar):
		a.focus = focusInput
	}
	return a, nil
}

func (a *App) handleModelsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Up):
		if a.modelIndex > 0 {
			a.modelIndex--
		}
	case key.Matches(msg, a.keys.Down):
		if a.modelIndex < len(a.models)-1 {
			a.modelIndex++
		}
	case key.Matches(msg, a.keys.Submit):
		a.eng.WithModel(a.models[a.modelIndex].ID)
		a.focus = focusInput
	case key.Matches(msg, a.keys.Escape):
		a.focus = focusInput
	}
	return a, nil
}

// =============================================================================
// LAYOUT & VIEW
// =============================================================================

func (a *App) sidebarWidth() int {
	if !a.showSidebar {
		return 0
	}
	w := a.width / 4
	if w < 20 {
		w = 20
	}
	return w
}

func (a *App) layout() {
	chatWidth := a.width - a.sidebarWidth()
	if chatWidth < 20 {
		chatWidth = 20
	}
	vpHeight := a.height - a.input.Height() - 5
	if vpHeight < 3 {
		vpHeight = 3
	}
	a.viewport = viewport.New(chatWidth-2, vpHeight)
	a.input.SetWidth(chatWidth - 4)
	a.sidebar.SetSize(a.sidebarWidth(), a.height)
	a.renderer = NewRenderer(a.cfg.UI.Markdown, chatWidth-6)
	a.refreshViewport()
}

// refreshViewport re-renders the timeline into the viewport and pins the
// view to the bottom.
func (a *App) refreshViewport() {
	if a.renderer == nil {
		return
	}
	var b strings.Builder
	for _, m := range a.eng.Messages() {
		switch {
		case m.Role == model.RoleUser:
			b.WriteString(a.theme.UserLabel.Render("나"))
			b.WriteString("\n")
			b.WriteString(m.Text())
		case m.Placeholder:
			b.WriteString(a.theme.AssistantLabel.Render("assistant"))
			b.WriteString("\n")
			b.WriteString(a.theme.Placeholder.Render(m.Content))
		default:
			b.WriteString(a.theme.AssistantLabel.Render("assistant"))
			b.WriteString("\n")
			b.WriteString(a.renderer.Render(m.Text()))
		}
		b.WriteString("\n\n")
	}
	a.viewport.SetContent(b.String())
	a.viewport.GotoBottom()
}

func (a *App) View() string {
	if !a.ready {
		return "loading..."
	}

	chat := a.viewport.View() + "\n" + a.statusLine() + "\n" + a.theme.InputBox.Render(a.input.View())

	var main string
	if a.showSidebar {
		main = lipgloss.JoinHorizontal(lipgloss.Top, a.sidebar.View(a.theme, a.focus == focusSidebar), chat)
	} else {
		main = chat
	}

	header := a.theme.Brand.Render("chatterm") + " " + a.theme.ShortcutDesc.Render(a.eng.SelectedModel())
	out := header + "\n" + main

	switch a.focus {
	case focusConfirm:
		if overlay := a.confirmView(); overlay != "" {
			out += "\n" + overlay
		}
	case focusModels:
		out += "\n" + a.modelsView()
	}
	return out
}

// statusLine shows engine state, notices, and shortcuts.
func (a *App) statusLine() string {
	var status string
	switch a.eng.Status() {
	case engine.StatusStreaming, engine.StatusSubmitted:
		status = a.spin.View() + " 생각 중..."
	default:
		status = a.theme.StatusOK.Render("ready")
	}
	if a.notice != "" {
		status += "  " + a.theme.Notice.Render(a.notice)
	}

	// Guests see a login affordance where signed-in users see who they are.
	who := a.theme.ShortcutDesc.Render("로그인: chatterm login")
	if id := a.session.CurrentIdentity(); id != nil && !id.User.IsGuest() {
		who = a.theme.ShortcutDesc.Render(id.User.DisplayName())
	}

	hints := a.theme.ShortcutKey.Render("ctrl+b") + a.theme.ShortcutDesc.Render(" sidebar  ") +
		a.theme.ShortcutKey.Render("ctrl+p") + a.theme.ShortcutDesc.Render(" model  ") +
		a.theme.ShortcutKey.Render("ctrl+r") + a.theme.ShortcutDesc.Render(" resend")
	return status + "  " + who + "  " + hints
}

// confirmView renders the pending confirmation's choices as buttons.
func (a *App) confirmView() string {
	pending := a.eng.PendingConfirmation()
	if pending == nil {
		return ""
	}
	var buttons []string
	for i, c := range pending.Choices {
		label := model.DisplayLabel(c)
		if i == a.confirmIndex {
			buttons = append(buttons, a.theme.ButtonActive.Render(label))
		} else {
			buttons = append(buttons, a.theme.ButtonInactive.Render(label))
		}
	}
	body := a.theme.ConfirmQuestion.Render(pending.OriginalMessage) + "\n\n" +
		lipgloss.JoinHorizontal(lipgloss.Center, buttons...)
	return a.theme.ConfirmBox.Render(body)
}

// modelsView renders the model picker.
func (a *App) modelsView() string {
	var b strings.Builder
	b.WriteString(a.theme.SidebarTitle.Render("모델 선택"))
	b.WriteString("\n")
	for i, m := range a.models {
		line := fmt.Sprintf("%s — %s", m.Name, m.Description)
		if i == a.modelIndex {
			b.WriteString(a.theme.SidebarSelected.Render("> " + line))
		} else {
			b.WriteString(a.theme.SidebarItem.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return a.theme.ConfirmBox.Render(b.String())
}
