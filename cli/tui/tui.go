// Package tui renders the contacts screen in a terminal.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cs414s24/contacts/console"
	"github.com/cs414s24/contacts/contacts"
)

const toastDuration = 3 * time.Second

const (
	inputID = iota
	inputName
	inputEmail
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	toastStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	dialogStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 2)
	rowIDStyle  = lipgloss.NewStyle().Bold(true)
)

// Messages emitted by the presenter.
type (
	dialogMsg struct{ title, message string }
	toastMsg  string
	clearMsg  struct{}
	listMsg   []contacts.Contact

	toastExpiredMsg struct{ seq int }
	realtimeDoneMsg struct{ err error }

	// presented wraps a presenter message read from the queue.
	presented struct{ msg tea.Msg }
)

// presenter implements [console.Presenter] by queueing messages for the
// bubbletea program.
type presenter struct {
	ctx   context.Context
	queue chan<- tea.Msg
}

func (p presenter) send(msg tea.Msg) {
	select {
	case p.queue <- msg:
	case <-p.ctx.Done():
	}
}

func (p presenter) Dialog(title, message string)       { p.send(dialogMsg{title, message}) }
func (p presenter) Toast(message string)               { p.send(toastMsg(message)) }
func (p presenter) ClearInputs()                       { p.send(clearMsg{}) }
func (p presenter) ShowContacts(cs []contacts.Contact) { p.send(listMsg(cs)) }

// Model is the bubbletea model of the contacts screen.
type Model struct {
	ctx     context.Context
	cancel  context.CancelFunc
	console *console.Console
	queue   chan tea.Msg

	inputs []textinput.Model
	focus  int

	dialog   *dialogMsg
	toast    string
	toastSeq int

	watching bool
	rows     []contacts.Contact
	list     viewport.Model
}

func New(ctx context.Context, gateway console.Gateway, logger *slog.Logger) Model {
	ctx, cancel := context.WithCancel(ctx)
	queue := make(chan tea.Msg, 64) //nolint: mnd // arbitrary

	inputs := make([]textinput.Model, 3) //nolint: mnd // id, name, email
	for i, label := range []string{"ID    ", "Name  ", "Email "} {
		inputs[i] = textinput.New()
		inputs[i].Prompt = label
		inputs[i].CharLimit = 120
	}
	inputs[inputID].Placeholder = "7"
	inputs[inputName].Placeholder = "john"
	inputs[inputEmail].Placeholder = "john@example.com"
	inputs[inputID].Focus()

	return Model{
		ctx:    ctx,
		cancel: cancel,
		console: &console.Console{
			Contacts: gateway,
			View:     presenter{ctx: ctx, queue: queue},
			Logger:   logger,
		},
		queue:  queue,
		inputs: inputs,
		list:   viewport.New(80, 10), //nolint: mnd // resized on the first WindowSizeMsg
	}
}

// Run shows the screen until the user quits or ctx is done.
func Run(ctx context.Context, gateway console.Gateway, logger *slog.Logger) error {
	m := New(ctx, gateway, logger)
	defer m.cancel()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.queue:
			return presented{msg}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) form() console.Form {
	return console.Form{
		ID:    m.inputs[inputID].Value(),
		Name:  m.inputs[inputName].Value(),
		Email: m.inputs[inputEmail].Value(),
	}
}

// do runs op off the UI goroutine; its results come back through the presenter.
func (m Model) do(op func(context.Context, console.Form)) tea.Cmd {
	form, ctx := m.form(), m.ctx
	return func() tea.Msg {
		op(ctx, form)
		return nil
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case presented:
		next, cmd := m.Update(msg.msg)
		return next, tea.Batch(cmd, m.wait())

	case tea.WindowSizeMsg:
		m.list.Width = msg.Width
		m.list.Height = max(msg.Height-14, 3) //nolint: mnd // room for the form
		return m, nil

	case dialogMsg:
		m.dialog = &msg
		return m, nil

	case toastMsg:
		m.toast = string(msg)
		m.toastSeq++
		seq := m.toastSeq
		return m, tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{seq} })

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil

	case clearMsg:
		for i := range m.inputs {
			m.inputs[i].Reset()
		}
		return m, nil

	case listMsg:
		m.rows = msg
		m.list.SetContent(renderRows(m.rows))
		return m, nil

	case realtimeDoneMsg:
		m.watching = false
		return m, nil

	case tea.KeyMsg:
		return m.key(msg)
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	if m.dialog != nil {
		switch msg.String() {
		case "esc", "enter":
			m.dialog = nil
		}
		return m, nil
	}

	switch msg.String() {
	case "tab", "down":
		cmd := m.setFocus((m.focus + 1) % len(m.inputs))
		return m, cmd
	case "shift+tab", "up":
		cmd := m.setFocus((m.focus + len(m.inputs) - 1) % len(m.inputs))
		return m, cmd
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	case "ctrl+a":
		return m, m.do(m.console.Add)
	case "ctrl+l":
		return m, m.do(func(ctx context.Context, _ console.Form) { m.console.ViewAll(ctx) })
	case "ctrl+d":
		return m, m.do(m.console.Delete)
	case "ctrl+u":
		return m, m.do(m.console.Update)
	case "ctrl+r":
		if m.watching {
			return m, nil
		}
		m.watching = true
		c, ctx := m.console, m.ctx
		return m, func() tea.Msg { return realtimeDoneMsg{c.Realtime(ctx)} }
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// setFocus moves the focus to input i.
func (m *Model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[m.focus].Focus()
}

func renderRows(cs []contacts.Contact) string {
	if len(cs) == 0 {
		return helpStyle.Render("no contacts")
	}
	var b strings.Builder
	for i, c := range cs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s\n  %s\n  %s\n", rowIDStyle.Render(fmt.Sprintf("Id: %d", c.ID)), c.Name, c.Email)
	}
	return b.String()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Contacts"))
	b.WriteString("\n\n")
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("ctrl+a add • ctrl+l list • ctrl+d delete • ctrl+u update • ctrl+r realtime • ctrl+c quit"))
	b.WriteString("\n")

	if m.dialog != nil {
		b.WriteString("\n")
		b.WriteString(dialogStyle.Render(titleStyle.Render(m.dialog.title) + "\n\n" +
			strings.TrimRight(m.dialog.message, "\n") + "\n\n" + helpStyle.Render("esc to close")))
		b.WriteString("\n")
	}
	if m.toast != "" {
		b.WriteString("\n")
		b.WriteString(toastStyle.Render(m.toast))
		b.WriteString("\n")
	}
	if m.watching || m.rows != nil {
		b.WriteString("\n")
		b.WriteString(m.list.View())
		b.WriteString("\n")
	}
	return b.String()
}
